// Copyright 2022-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/duration"
)

//nolint:gochecknoglobals
var (
	// note that these globals have no locks on purpose - they are expected to be set at init and then again after config parsing.
	globalLevel  zap.AtomicLevel
	globalLogger logr.Logger
	globalFlush  func()
)

//nolint:gochecknoinits
func init() {
	// make sure we always have a functional global logger
	globalLevel = zap.NewAtomicLevelAt(0) // log at the 0 verbosity level to start with, i.e. the "always" logs
	// use json encoding to start with
	// the context here is just used for test injection and thus can be ignored
	log, flush := newLogr(context.Background(), "json")
	setGlobalLoggers(log, flush)
}

// Logr returns the current global logger for libraries which want a logr.Logger.
func Logr() logr.Logger {
	return globalLogger
}

// Setup returns a function which flushes any buffered logs, meant to be deferred by main.
func Setup() func() {
	return func() {
		globalFlush()
	}
}

// setGlobalLoggers sets the plog global logger.  it is *not* go routine safe.
func setGlobalLoggers(log logr.Logger, flush func()) {
	globalLogger = log
	globalFlush = flush
}

func newLogr(ctx context.Context, encoding string) (logr.Logger, func()) {
	var w io.Writer = os.Stderr
	f := func(config *zapcore.EncoderConfig) {
		if encoding == "console" {
			config.LevelKey = zapcore.OmitKey
			config.EncodeCaller = zapcore.ShortCallerEncoder
			config.EncodeTime = humanTimeEncoder
			config.EncodeDuration = humanDurationEncoder
		}
	}
	var level zapcore.LevelEnabler = globalLevel
	var opts []zap.Option

	// allow tests to override zap config
	if overrides, ok := ctx.Value(testOverridesContextKey).(*testOverrides); ok {
		if overrides.w != nil {
			w = overrides.w
		}
		if overrides.f != nil {
			f = overrides.f
		}
		if overrides.level != nil {
			level = overrides.level
		}
		opts = overrides.opts
	}

	// when using the trace or all log levels, an error log will contain the full stack.
	// this check is performed dynamically on the global log level.
	return newZapr(level, LevelTrace, encoding, newSink(w), f, opts...)
}

func newZapr(
	level zapcore.LevelEnabler,
	addStack LogLevel,
	encoding string,
	sink zapcore.WriteSyncer,
	f func(config *zapcore.EncoderConfig),
	opts ...zap.Option,
) (logr.Logger, func()) {
	opts = append([]zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(stackLevelEnabler{verbosity: verbosityForLevel(addStack)}),
		zap.ErrorOutput(sink),
	}, opts...)

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "timestamp",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey, // included in caller
		StacktraceKey:  "stacktrace",
		SkipLineEnding: false,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		// human-readable and machine parsable with microsecond precision (same as klog, kube audit event, etc)
		EncodeTime:       zapcore.TimeEncoderOfLayout(metav1.RFC3339Micro),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     callerEncoder,
		ConsoleSeparator: "  ",
	}

	f(&encoderConfig)

	var encoder zapcore.Encoder
	if encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	log := zap.New(zapcore.NewCore(encoder, sink, level), opts...)

	return zapr.NewLogger(log), func() { _ = log.Sync() }
}

// stackLevelEnabler adds stack traces to error logs only when the global level is at least addStack.
type stackLevelEnabler struct {
	verbosity int
}

func (s stackLevelEnabler) Enabled(l zapcore.Level) bool {
	return l >= zapcore.ErrorLevel && globalLevel.Enabled(zapcore.Level(-s.verbosity))
}

func levelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	plogLevel := zapLevelToPlogLevel(l)

	if len(plogLevel) == 0 {
		return // this tells zap that it should handle encoding the level itself because we do not know the mapping
	}

	enc.AppendString(string(plogLevel))
}

func callerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(caller.String() + funcEncoder(caller))
}

func funcEncoder(caller zapcore.EntryCaller) string {
	funcName := caller.Function
	if idx := strings.LastIndexByte(funcName, '/'); idx != -1 {
		funcName = funcName[idx+1:] // keep everything after the last /
	}
	return "$" + funcName
}

func humanDurationEncoder(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(duration.HumanDuration(d))
}

func humanTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Local().Format(time.RFC1123))
}

// newSink returns a wrapper around the input writer that is safe for concurrent use.
func newSink(w io.Writer) zapcore.WriteSyncer {
	return zapcore.Lock(zapcore.AddSync(w))
}
