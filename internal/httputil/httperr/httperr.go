// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package httperr contains some helpers for nicer error handling in http.Handler implementations.
package httperr

import (
	"fmt"
	"net/http"

	"go.pinniped.dev/kube-ldap/internal/plog"
)

// Responder represents an error that can emit a useful HTTP error response to an http.ResponseWriter.
type Responder interface {
	error
	Respond(http.ResponseWriter)
}

// New returns a Responder that emits the given HTTP status code and message.
func New(code int, msg string) error {
	return httpErr{code: code, msg: msg}
}

// Newf returns a Responder that emits the given HTTP status code and fmt.Sprintf formatted message.
func Newf(code int, format string, args ...any) error {
	return httpErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a Responder that emits the given HTTP status code and message, and also wraps an internal error.
// Only msg is sent to the client.
func Wrap(code int, msg string, cause error) error {
	return httpErr{code: code, msg: msg, cause: cause}
}

// Unauthorized returns a Responder for a 401 which asks the client to retry with HTTP basic credentials for realm.
func Unauthorized(realm string, msg string, cause error) error {
	return httpErr{
		code:   http.StatusUnauthorized,
		msg:    msg,
		cause:  cause,
		header: http.Header{"Www-Authenticate": {fmt.Sprintf("Basic realm=%q", realm)}},
	}
}

type httpErr struct {
	code   int
	msg    string
	cause  error
	header http.Header
}

func (e httpErr) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e httpErr) Respond(w http.ResponseWriter) {
	for k, v := range e.header {
		w.Header()[k] = v
	}
	// http.Error is important here because it prevents content sniffing by forcing text/plain.
	http.Error(w, http.StatusText(e.code)+": "+e.msg, e.code)
}

func (e httpErr) Unwrap() error {
	return e.cause
}

// StatusCode returns the HTTP status code which the Responder emits.
func (e httpErr) StatusCode() int {
	return e.code
}

// HandlerFunc is like http.HandlerFunc, but with a function signature that allows easier error handling.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch err := f(w, r).(type) {
	case nil:
		return
	case Responder:
		plog.DebugErr("request failed", err, "path", r.URL.Path)
		err.Respond(w)
	default:
		plog.Error("unexpected error while handling request", err, "path", r.URL.Path)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
