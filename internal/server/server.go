// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package server serves the HTTP API of kube-ldap: /auth exchanges LDAP credentials for a token and
// /token is a Kubernetes webhook token authenticator which verifies those tokens.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"k8s.io/utils/clock"

	"go.pinniped.dev/kube-ldap/internal/claims"
	"go.pinniped.dev/kube-ldap/internal/metrics"
	"go.pinniped.dev/kube-ldap/internal/plog"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// UserAuthenticator checks a username and password against the directory.
type UserAuthenticator interface {
	AuthenticateUser(ctx context.Context, username, password string) (*claims.Claims, error)
}

// TokenCodec issues and verifies tokens.
type TokenCodec interface {
	Issue(c *claims.Claims, lifetime time.Duration) (string, error)
	Verify(token string) (*claims.Claims, error)
}

// Config holds the dependencies of a Server.
type Config struct {
	Authenticator UserAuthenticator
	Codec         TokenCodec
	TokenLifetime time.Duration
	// Metrics is optional.  When set, /metrics is served.
	Metrics *metrics.Metrics
	// Clock exists to enable testing. When nil, the real clock is used.
	Clock clock.Clock
}

// Server is the HTTP API of kube-ldap.
type Server struct {
	authenticator UserAuthenticator
	codec         TokenCodec
	tokenLifetime time.Duration
	metrics       *metrics.Metrics
	clock         clock.Clock
	newAuditID    func() string
}

func New(c Config) *Server {
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
	return &Server{
		authenticator: c.Authenticator,
		codec:         c.Codec,
		tokenLifetime: c.TokenLifetime,
		metrics:       c.Metrics,
		clock:         c.Clock,
		newAuditID:    newUUID,
	}
}

// Handler returns the routes of the API wrapped in the request logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(healthz))
	mux.Handle("/auth", s.authHandler())
	mux.Handle("/token", s.tokenHandler())
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return withAuditID(withRequestLogging(withSecurityHeaders(withCORS(mux)), s.clock), s.newAuditID)
}

// Serve serves the API on l until ctx is cancelled, after which it shuts down gracefully.
// When tlsConfig is nil, plain HTTP is served.
func (s *Server) Serve(ctx context.Context, l net.Listener, tlsConfig *tls.Config) error {
	server := &http.Server{
		Handler:           s.Handler(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsConfig != nil {
			// Per ServeTLS doc, the {cert,key}File parameters can be empty
			// since we want to use the certs from http.Server.TLSConfig.
			errCh <- server.ServeTLS(l, "", "")
			return
		}
		errCh <- server.Serve(l)
	}()

	plog.Info("server is ready", "address", l.Addr().String(), "tls", tlsConfig != nil)

	select {
	case err := <-errCh:
		return fmt.Errorf("server exited: %w", err)
	case <-ctx.Done():
		plog.Debug("server context cancelled", "err", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
