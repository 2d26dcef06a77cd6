// Copyright 2024-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bufio"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/types"
	apisaudit "k8s.io/apiserver/pkg/apis/audit"
	"k8s.io/apiserver/pkg/audit"
	"k8s.io/apiserver/pkg/endpoints/responsewriter"
	"k8s.io/utils/clock"

	"go.pinniped.dev/kube-ldap/internal/plog"
)

func newUUID() string {
	return uuid.New().String()
}

// newRequestWithAuditID is split out for use in unit tests.
func newRequestWithAuditID(r *http.Request, newAuditIDFunc func() string) (*http.Request, string) {
	ctx := audit.WithAuditContext(r.Context())
	r = r.WithContext(ctx)

	auditID := newAuditIDFunc()
	audit.WithAuditID(ctx, types.UID(auditID))

	return r, auditID
}

func withAuditID(handler http.Handler, newAuditIDFunc func() string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, auditID := newRequestWithAuditID(r, newAuditIDFunc)

		// Send the Audit-ID response header.
		w.Header().Set(apisaudit.HeaderAuditID, auditID)

		handler.ServeHTTP(w, r)
	})
}

// withSecurityHeaders sets response headers which keep issued tokens out of caches and browsers.
func withSecurityHeaders(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-cache,no-store,max-age=0,must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		handler.ServeHTTP(w, r)
	})
}

func withRequestLogging(handler http.Handler, clock clock.Clock) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rl := newRequestLogger(req, w, clock)

		rl.logRequestReceived()
		defer rl.logRequestComplete()

		statusCodeCapturingResponseWriter := responsewriter.WrapForHTTP1Or2(rl)
		handler.ServeHTTP(statusCodeCapturingResponseWriter, req)
	})
}

type requestLogger struct {
	startTime time.Time
	clock     clock.Clock

	hijacked       bool
	statusRecorded bool
	status         int

	req       *http.Request
	userAgent string
	w         http.ResponseWriter
}

func newRequestLogger(req *http.Request, w http.ResponseWriter, clock clock.Clock) *requestLogger {
	return &requestLogger{
		req:       req,
		w:         w,
		startTime: clock.Now(),
		clock:     clock,
		userAgent: req.UserAgent(), // cache this from the req to avoid any possibility of concurrent read/write problems with headers map
	}
}

// internalPaths are polled by infrastructure, so they are only logged at trace level.
func internalPaths() []string {
	return []string{
		"/healthz",
		"/metrics",
	}
}

func (rl *requestLogger) log(msg string, keysAndValues ...any) {
	keysAndValues = append([]any{"auditID", audit.GetAuditIDTruncated(rl.req.Context())}, keysAndValues...)
	if slices.Contains(internalPaths(), rl.req.URL.Path) {
		plog.Trace(msg, keysAndValues...)
		return
	}
	plog.Info(msg, keysAndValues...)
}

func (rl *requestLogger) logRequestReceived() {
	r := rl.req

	rl.log("HTTP Request Received",
		"proto", r.Proto,
		"method", r.Method,
		"host", r.Host,
		"serverName", sniServerName(r),
		"path", r.URL.Path,
		"userAgent", rl.userAgent,
		"remoteAddr", r.RemoteAddr,
	)
}

func (rl *requestLogger) logRequestComplete() {
	rl.log("HTTP Request Completed",
		"path", rl.req.URL.Path, // include the path again to make it easy to "grep -v healthz" to watch all other requests
		"latency", rl.clock.Since(rl.startTime),
		"responseStatus", rl.status,
		"hijacked", rl.hijacked,
	)
}

func sniServerName(r *http.Request) string {
	if r.TLS != nil {
		return r.TLS.ServerName
	}
	return ""
}

// Unwrap implements responsewriter.UserProvidedDecorator.
func (rl *requestLogger) Unwrap() http.ResponseWriter {
	return rl.w
}

// Header implements http.ResponseWriter.
func (rl *requestLogger) Header() http.Header {
	return rl.w.Header()
}

// Write implements http.ResponseWriter.
func (rl *requestLogger) Write(b []byte) (int, error) {
	if !rl.statusRecorded {
		rl.recordStatus(http.StatusOK) // Default if WriteHeader hasn't been called
	}
	return rl.w.Write(b)
}

// WriteHeader implements http.ResponseWriter.
func (rl *requestLogger) WriteHeader(status int) {
	rl.recordStatus(status)
	rl.w.WriteHeader(status)
}

// Hijack implements http.Hijacker.
func (rl *requestLogger) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rl.hijacked = true

	// the outer ResponseWriter object returned by WrapForHTTP1Or2 implements
	// http.Hijacker if the inner object (rl.w) implements http.Hijacker.
	return rl.w.(http.Hijacker).Hijack()
}

func (rl *requestLogger) recordStatus(status int) {
	rl.status = status
	rl.statusRecorded = true
}
