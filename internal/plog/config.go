// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/util/wait"

	"go.pinniped.dev/kube-ldap/internal/constable"
)

type LogFormat string

func (l *LogFormat) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `""`, `"json"`:
		*l = FormatJSON
	case `"text"`, `"console"`:
		*l = FormatText
	default:
		return errInvalidLogFormat
	}
	return nil
}

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"

	errInvalidLogFormat = constable.Error("invalid log format, valid choices are the empty string, 'json' and 'text'")
)

var _ json.Unmarshaler = func() *LogFormat {
	var f LogFormat
	return &f
}()

type LogSpec struct {
	Level  LogLevel  `json:"level,omitempty"`
	Format LogFormat `json:"format,omitempty"`
}

// ValidateAndSetLogLevelAndFormatGlobally replaces the global logger with one configured by spec.
// A background flush loop runs until ctx is cancelled.
func ValidateAndSetLogLevelAndFormatGlobally(ctx context.Context, spec LogSpec) error {
	verbosity := verbosityForLevel(spec.Level)
	if verbosity < 0 {
		return errInvalidLogLevel
	}

	var encoding string
	switch spec.Format {
	case "", FormatJSON:
		encoding = "json"
	case FormatText:
		encoding = "console"
	default:
		return errInvalidLogFormat
	}

	//nolint:gosec // the range for verbosity is [0,108]
	globalLevel.SetLevel(zapcore.Level(-verbosity)) // logr verbosity is inverted when zap handles it

	log, flush := newLogr(ctx, encoding)
	setGlobalLoggers(log, flush)

	go wait.UntilWithContext(ctx, func(_ context.Context) { flush() }, time.Minute)
	go func() {
		<-ctx.Done()
		flush() // best effort flush before shutdown as this is not coordinated with a wait group
	}()

	return nil
}
