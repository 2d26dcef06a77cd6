// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestValidateAndSetLogLevelAndFormatGlobally(t *testing.T) {
	originalLevel := globalLevel.Level()
	originalLogger, originalFlush := globalLogger, globalFlush
	t.Cleanup(func() {
		globalLevel.SetLevel(originalLevel)
		setGlobalLoggers(originalLogger, originalFlush)
	})

	tests := []struct {
		name        string
		spec        LogSpec
		wantEnabled []LogLevel
		wantOff     []LogLevel
		wantErr     string
	}{
		{
			name:        "unset",
			wantEnabled: []LogLevel{LevelWarning},
			wantOff:     []LogLevel{LevelInfo, LevelDebug, LevelTrace, LevelAll},
		},
		{
			name:        "info",
			spec:        LogSpec{Level: LevelInfo},
			wantEnabled: []LogLevel{LevelWarning, LevelInfo},
			wantOff:     []LogLevel{LevelDebug, LevelTrace, LevelAll},
		},
		{
			name:        "debug with text format",
			spec:        LogSpec{Level: LevelDebug, Format: FormatText},
			wantEnabled: []LogLevel{LevelWarning, LevelInfo, LevelDebug},
			wantOff:     []LogLevel{LevelTrace, LevelAll},
		},
		{
			name:        "trace",
			spec:        LogSpec{Level: LevelTrace, Format: FormatJSON},
			wantEnabled: []LogLevel{LevelWarning, LevelInfo, LevelDebug, LevelTrace},
			wantOff:     []LogLevel{LevelAll},
		},
		{
			name:        "all",
			spec:        LogSpec{Level: LevelAll},
			wantEnabled: []LogLevel{LevelWarning, LevelInfo, LevelDebug, LevelTrace, LevelAll},
		},
		{
			name:    "invalid level",
			spec:    LogSpec{Level: "panda"},
			wantErr: errInvalidLogLevel.Error(),
		},
		{
			name:    "invalid format",
			spec:    LogSpec{Format: "yaml"},
			wantErr: errInvalidLogFormat.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			t.Cleanup(cancel)

			var buf bytes.Buffer
			ctx = AddZapOverridesToContext(ctx, t, &buf, nil, nil, clocktesting.NewFakeClock(time.Now()))

			err := ValidateAndSetLogLevelAndFormatGlobally(ctx, tt.spec)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			for _, level := range tt.wantEnabled {
				require.Truef(t, Enabled(level), "level %q should be enabled", level)
			}
			for _, level := range tt.wantOff {
				require.Falsef(t, Enabled(level), "level %q should be disabled", level)
			}
		})
	}
}

func TestLogFormatUnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    LogFormat
		wantErr bool
	}{
		{in: `{"format":""}`, want: FormatJSON},
		{in: `{"format":"json"}`, want: FormatJSON},
		{in: `{"format":"text"}`, want: FormatText},
		{in: `{"format":"console"}`, want: FormatText},
		{in: `{"format":"xml"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var spec LogSpec
			err := json.Unmarshal([]byte(tt.in), &spec)
			if tt.wantErr {
				require.ErrorIs(t, err, errInvalidLogFormat)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, spec.Format)
		})
	}
}

func TestZapLevelToPlogLevel(t *testing.T) {
	require.Equal(t, LogLevel("error"), zapLevelToPlogLevel(zapcore.ErrorLevel))
	require.Equal(t, LogLevel(""), zapLevelToPlogLevel(zapcore.Level(-verbosityWarning)))
	require.Equal(t, LevelInfo, zapLevelToPlogLevel(zapcore.Level(-verbosityInfo)))
	require.Equal(t, LevelDebug, zapLevelToPlogLevel(zapcore.Level(-verbosityDebug)))
	require.Equal(t, LevelTrace, zapLevelToPlogLevel(zapcore.Level(-verbosityTrace)))
	require.Equal(t, LevelAll, zapLevelToPlogLevel(zapcore.Level(-verbosityAll-100)))
}
