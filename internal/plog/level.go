// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"go.uber.org/zap/zapcore"

	"go.pinniped.dev/kube-ldap/internal/constable"
)

// LogLevel is an enum that controls verbosity of logs.
// Valid values in order of increasing verbosity are leaving it unset, info, debug, trace and all.
type LogLevel string

const (
	// LevelWarning (i.e. leaving the log level unset) maps to logr verbosity 0.
	LevelWarning LogLevel = ""
	// LevelInfo maps to logr verbosity 2.
	LevelInfo LogLevel = "info"
	// LevelDebug maps to logr verbosity 4.
	LevelDebug LogLevel = "debug"
	// LevelTrace maps to logr verbosity 6.
	LevelTrace LogLevel = "trace"
	// LevelAll maps to logr verbosity 108 (conceptually it is verbosity 8).
	LevelAll LogLevel = "all"

	errInvalidLogLevel = constable.Error("invalid log level, valid choices are the empty string, info, debug, trace and all")
)

const (
	verbosityWarning = iota * 2
	verbosityInfo
	verbosityDebug
	verbosityTrace
	verbosityAll
)

// verbosityForLevel returns -1 for unknown levels.
func verbosityForLevel(level LogLevel) int {
	switch level {
	case LevelWarning:
		return verbosityWarning // unset means minimal logs (Error and Warning)
	case LevelInfo:
		return verbosityInfo
	case LevelDebug:
		return verbosityDebug
	case LevelTrace:
		return verbosityTrace
	case LevelAll:
		return verbosityAll + 100 // make all really mean all
	default:
		return -1
	}
}

// Enabled returns whether the given level is currently being emitted by the global logger.
func Enabled(level LogLevel) bool {
	v := verbosityForLevel(level)
	if v < 0 {
		return false
	}
	return globalLevel.Enabled(zapcore.Level(-v)) // logr verbosity is inverted when zap handles it
}

func zapLevelToPlogLevel(l zapcore.Level) LogLevel {
	if l > 0 {
		// zap's positive levels are only reached through logr's Error call
		return LogLevel(l.String())
	}

	switch v := -int(l); {
	case v >= verbosityAll:
		return LevelAll
	case v >= verbosityTrace:
		return LevelTrace
	case v >= verbosityDebug:
		return LevelDebug
	case v >= verbosityInfo:
		return LevelInfo
	default:
		return "" // warning is handled via a custom key since verbosity 0 is ambiguous
	}
}
