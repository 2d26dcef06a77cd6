// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package testutil contains helpers which are shared by the tests of several packages.
package testutil

import (
	"crypto/tls"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// TLSTestServer listens on a local port with a serving certificate for 127.0.0.1 issued by ca.  It completes
// TLS handshakes and then holds each connection open without reading from it, which is enough for clients
// which only need to connect, like an LDAPS dialer.  It returns the host and port of the listener.  The
// lifetime of the server is bound to the provided *testing.T.
func TLSTestServer(t *testing.T, ca *TestCA) (hostAndPort string) {
	t.Helper()

	certPEM, keyPEM := ca.IssueServingCert(t, "127.0.0.1")
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	l, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		_ = l.Close()
	})

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go holdOpen(conn, done)
		}
	}()

	return l.Addr().String()
}

func holdOpen(conn net.Conn, done <-chan struct{}) {
	defer func() { _ = conn.Close() }()

	// Failed handshakes, e.g. from clients which do not trust the CA, just end the connection.
	if err := conn.(*tls.Conn).Handshake(); err != nil {
		return
	}
	<-done
}
