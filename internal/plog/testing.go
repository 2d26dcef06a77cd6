// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"bytes"
	"context"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"
)

// contextKey type is unexported to prevent collisions.
type contextKey int

const testOverridesContextKey contextKey = iota

type testOverrides struct {
	w     io.Writer
	f     func(*zapcore.EncoderConfig)
	level zapcore.LevelEnabler
	opts  []zap.Option
}

// AddZapOverridesToContext adds zap overrides to the context.
// This is done so that production code can read these values for test overrides.
// Do not pass zap.WithClock in opts since that will be constructed for you from fakeClock.
func AddZapOverridesToContext(
	ctx context.Context,
	t *testing.T,
	w io.Writer,
	f func(*zapcore.EncoderConfig),
	level zapcore.LevelEnabler,
	fakeClock *clocktesting.FakeClock,
	opts ...zap.Option,
) context.Context {
	t.Helper() // discourage use outside of tests
	require.NotNil(t, fakeClock, "fakeClock is required")

	opts = append(opts, zap.WithClock(ZapClock(fakeClock)))

	overrides := &testOverrides{
		w:     w,
		f:     f,
		level: level,
		opts:  opts,
	}

	return context.WithValue(ctx, testOverridesContextKey, overrides)
}

// TestLogger returns a Logger which writes JSON logs at every level into the returned buffer.
func TestLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()

	var log bytes.Buffer

	return New().withLogrMod(func(l logr.Logger) logr.Logger {
			return l.WithSink(testZapr(t, &log, "json").GetSink())
		}),
		&log
}

func TestConsoleLogger(t *testing.T, w io.Writer) Logger {
	t.Helper()

	return New().withLogrMod(func(l logr.Logger) logr.Logger {
		return l.WithSink(testZapr(t, w, "console").GetSink())
	})
}

// TestGlobalLogger replaces the global logger with a test logger for the duration of the test.
// Tests which call it must not run in parallel with other tests of the same package.
func TestGlobalLogger(t *testing.T) *bytes.Buffer {
	t.Helper()

	var log bytes.Buffer

	originalLogger, originalFlush := globalLogger, globalFlush
	t.Cleanup(func() { setGlobalLoggers(originalLogger, originalFlush) })

	setGlobalLoggers(testZapr(t, &log, "json"), func() {})

	return &log
}

func testZapr(t *testing.T, w io.Writer, encoding string) logr.Logger {
	t.Helper()

	now, err := time.Parse(time.RFC3339Nano, "2099-08-08T13:57:36.123456789Z")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ctx = AddZapOverridesToContext(ctx, t, w,
		func(config *zapcore.EncoderConfig) {
			// make test assertions less painful to write while keeping them as close to the real thing as possible
			config.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
				trimmed := caller.TrimmedPath()
				if idx := strings.LastIndexByte(trimmed, ':'); idx != -1 {
					trimmed = trimmed[:idx+1] + "<line>"
				}
				if encoding != "console" {
					trimmed += funcEncoder(caller)
				}
				enc.AppendString(trimmed)
			}
			if encoding == "console" {
				config.LevelKey = zapcore.OmitKey
				config.EncodeTime = humanTimeEncoder
				config.EncodeDuration = humanDurationEncoder
			}
		},
		zap.NewAtomicLevelAt(math.MinInt8),   // log everything during tests
		clocktesting.NewFakeClock(now),       // have the clock be static during tests
		zap.AddStacktrace(nopLevelEnabler{}), // do not log stacktraces
	)

	// there is no buffering so we can ignore flush
	zl, _ := newLogr(ctx, encoding)

	return zl
}

var _ zapcore.Clock = &clockAdapter{}

type clockAdapter struct {
	clock clock.Clock
}

func (c *clockAdapter) Now() time.Time {
	return c.clock.Now()
}

func (c *clockAdapter) NewTicker(duration time.Duration) *time.Ticker {
	return &time.Ticker{C: c.clock.Tick(duration)}
}

func ZapClock(c clock.Clock) zapcore.Clock {
	return &clockAdapter{clock: c}
}

var _ zapcore.LevelEnabler = nopLevelEnabler{}

type nopLevelEnabler struct{}

func (nopLevelEnabler) Enabled(_ zapcore.Level) bool { return false }
