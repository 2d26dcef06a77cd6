// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import "github.com/go-logr/logr"

const errorKey = "error"

// Logger is the plog logging interface.  Obtain one with New, or use the package level functions
// which log through the global logger.
type Logger interface {
	// Error logs an unexpected system error.
	Error(msg string, err error, keysAndValues ...any)
	Warning(msg string, keysAndValues ...any)
	// WarningErr issues a Warning message with an error object as part of the message.
	WarningErr(msg string, err error, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	// InfoErr logs an expected error, e.g. validation failure of an http parameter.
	InfoErr(msg string, err error, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
	// DebugErr issues a Debug message with an error object as part of the message.
	DebugErr(msg string, err error, keysAndValues ...any)
	Trace(msg string, keysAndValues ...any)
	// TraceErr issues a Trace message with an error object as part of the message.
	TraceErr(msg string, err error, keysAndValues ...any)
	All(msg string, keysAndValues ...any)

	WithValues(keysAndValues ...any) Logger
	WithName(name string) Logger

	withDepth(d int) Logger
	withLogrMod(mod func(logr.Logger) logr.Logger) Logger
}

var _ Logger = pLogger{}

type pLogger struct {
	mods  []func(logr.Logger) logr.Logger
	depth int
}

// New returns a Logger that always uses the current global logger, so that it correctly
// responds to changes of the global log configuration.
func New() Logger {
	return pLogger{}
}

func (p pLogger) Error(msg string, err error, keysAndValues ...any) {
	p.logr().WithCallDepth(p.depth+1).Error(err, msg, keysAndValues...)
}

func (p pLogger) warningDepth(msg string, depth int, keysAndValues ...any) {
	if p.logr().V(verbosityWarning).Enabled() {
		// logr has no concept of a warning, so we use info at verbosity zero as a proxy
		// and add a key to make these easier to find
		p.logr().WithCallDepth(depth+1).V(verbosityWarning).Info(msg, append([]any{"warning", true}, keysAndValues...)...)
	}
}

func (p pLogger) Warning(msg string, keysAndValues ...any) {
	p.warningDepth(msg, p.depth+1, keysAndValues...)
}

func (p pLogger) WarningErr(msg string, err error, keysAndValues ...any) {
	p.warningDepth(msg, p.depth+1, append([]any{errorKey, err}, keysAndValues...)...)
}

func (p pLogger) infoDepth(msg string, depth int, keysAndValues ...any) {
	if p.logr().V(verbosityInfo).Enabled() {
		p.logr().WithCallDepth(depth+1).V(verbosityInfo).Info(msg, keysAndValues...)
	}
}

func (p pLogger) Info(msg string, keysAndValues ...any) {
	p.infoDepth(msg, p.depth+1, keysAndValues...)
}

func (p pLogger) InfoErr(msg string, err error, keysAndValues ...any) {
	p.infoDepth(msg, p.depth+1, append([]any{errorKey, err}, keysAndValues...)...)
}

func (p pLogger) debugDepth(msg string, depth int, keysAndValues ...any) {
	if p.logr().V(verbosityDebug).Enabled() {
		p.logr().WithCallDepth(depth+1).V(verbosityDebug).Info(msg, keysAndValues...)
	}
}

func (p pLogger) Debug(msg string, keysAndValues ...any) {
	p.debugDepth(msg, p.depth+1, keysAndValues...)
}

func (p pLogger) DebugErr(msg string, err error, keysAndValues ...any) {
	p.debugDepth(msg, p.depth+1, append([]any{errorKey, err}, keysAndValues...)...)
}

func (p pLogger) traceDepth(msg string, depth int, keysAndValues ...any) {
	if p.logr().V(verbosityTrace).Enabled() {
		p.logr().WithCallDepth(depth+1).V(verbosityTrace).Info(msg, keysAndValues...)
	}
}

func (p pLogger) Trace(msg string, keysAndValues ...any) {
	p.traceDepth(msg, p.depth+1, keysAndValues...)
}

func (p pLogger) TraceErr(msg string, err error, keysAndValues ...any) {
	p.traceDepth(msg, p.depth+1, append([]any{errorKey, err}, keysAndValues...)...)
}

func (p pLogger) All(msg string, keysAndValues ...any) {
	if p.logr().V(verbosityAll).Enabled() {
		p.logr().WithCallDepth(p.depth+1).V(verbosityAll).Info(msg, keysAndValues...)
	}
}

func (p pLogger) WithValues(keysAndValues ...any) Logger {
	if len(keysAndValues) == 0 {
		return p
	}

	return p.withLogrMod(func(l logr.Logger) logr.Logger {
		return l.WithValues(keysAndValues...)
	})
}

func (p pLogger) WithName(name string) Logger {
	if len(name) == 0 {
		return p
	}

	return p.withLogrMod(func(l logr.Logger) logr.Logger {
		return l.WithName(name)
	})
}

func (p pLogger) withDepth(d int) Logger {
	out := p
	out.depth += d // out is a copy so this does not mutate p
	return out
}

func (p pLogger) withLogrMod(mod func(logr.Logger) logr.Logger) Logger {
	out := p // make a copy and carefully avoid mutating the mods slice
	mods := make([]func(logr.Logger) logr.Logger, 0, len(out.mods)+1)
	mods = append(mods, out.mods...)
	mods = append(mods, mod)
	out.mods = mods
	return out
}

func (p pLogger) logr() logr.Logger {
	l := globalLogger
	for _, mod := range p.mods {
		l = mod(l)
	}
	return l
}

// The package level functions below log through the global logger.

var logger = New().withDepth(1) //nolint:gochecknoglobals

func Error(msg string, err error, keysAndValues ...any) {
	logger.Error(msg, err, keysAndValues...)
}

func Warning(msg string, keysAndValues ...any) {
	logger.Warning(msg, keysAndValues...)
}

func WarningErr(msg string, err error, keysAndValues ...any) {
	logger.WarningErr(msg, err, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	logger.Info(msg, keysAndValues...)
}

func InfoErr(msg string, err error, keysAndValues ...any) {
	logger.InfoErr(msg, err, keysAndValues...)
}

func Debug(msg string, keysAndValues ...any) {
	logger.Debug(msg, keysAndValues...)
}

func DebugErr(msg string, err error, keysAndValues ...any) {
	logger.DebugErr(msg, err, keysAndValues...)
}

func Trace(msg string, keysAndValues ...any) {
	logger.Trace(msg, keysAndValues...)
}

func TraceErr(msg string, err error, keysAndValues ...any) {
	logger.TraceErr(msg, err, keysAndValues...)
}

func All(msg string, keysAndValues ...any) {
	logger.All(msg, keysAndValues...)
}

func WithValues(keysAndValues ...any) Logger {
	// this looks weird but it is the same as New().WithValues(keysAndValues...) because it returns a new logger rooted at the call site
	return logger.withDepth(-1).WithValues(keysAndValues...)
}

func WithName(name string) Logger {
	// this looks weird but it is the same as New().WithName(name) because it returns a new logger rooted at the call site
	return logger.withDepth(-1).WithName(name)
}
