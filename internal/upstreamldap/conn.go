// Copyright 2021-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package upstreamldap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

const (
	ldapScheme  = "ldap"
	ldapsScheme = "ldaps"
)

// Conn abstracts the upstream LDAP communication protocol (mostly for testing).
type Conn interface {
	Bind(username, password string) error

	UnauthenticatedBind(username string) error

	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)

	SetTimeout(timeout time.Duration)

	IsClosing() bool

	Close() error
}

// Our Conn type is subset of the ldap.Client interface, which is implemented by ldap.Conn.
var _ Conn = &ldap.Conn{}

// LDAPDialer is a factory of Conn, and the resulting Conn can then be used to interact with an upstream LDAP IDP.
type LDAPDialer interface {
	Dial(ctx context.Context, hostAndPort string) (Conn, error)
}

// LDAPDialerFunc makes it easy to use a func as an LDAPDialer.
type LDAPDialerFunc func(ctx context.Context, hostAndPort string) (Conn, error)

var _ LDAPDialer = LDAPDialerFunc(nil)

func (f LDAPDialerFunc) Dial(ctx context.Context, hostAndPort string) (Conn, error) {
	return f(ctx, hostAndPort)
}

// endpoint is a parsed server URL.
type endpoint struct {
	scheme      string
	hostAndPort string
}

func (e endpoint) String() string {
	return e.scheme + "://" + e.hostAndPort
}

// parseServerURL accepts "ldaps://host[:port]", "ldap://host[:port]" or a bare "host[:port]", which means ldaps.
func parseServerURL(serverURL string) (endpoint, error) {
	scheme, host := ldapsScheme, serverURL
	if before, after, found := strings.Cut(serverURL, "://"); found {
		scheme, host = strings.ToLower(before), strings.TrimSuffix(after, "/")
	}

	var defaultPort string
	switch scheme {
	case ldapsScheme:
		defaultPort = ldap.DefaultLdapsPort
	case ldapScheme:
		defaultPort = ldap.DefaultLdapPort
	default:
		return endpoint{}, fmt.Errorf("unsupported scheme %q in %q, expected %q or %q", scheme, serverURL, ldapScheme, ldapsScheme)
	}

	if len(host) == 0 || strings.ContainsAny(host, "/?#") {
		return endpoint{}, fmt.Errorf("invalid host in %q", serverURL)
	}

	hostAndPort, err := hostAndPortWithDefaultPort(host, defaultPort)
	if err != nil {
		return endpoint{}, err
	}

	return endpoint{scheme: scheme, hostAndPort: hostAndPort}, nil
}

func (p *Provider) dial(ctx context.Context) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.c.Timeout)
	defer cancel()

	if p.c.Dialer != nil {
		return p.c.Dialer.Dial(ctx, p.endpoint.hostAndPort)
	}
	if p.endpoint.scheme == ldapsScheme {
		return p.dialTLS(ctx, p.endpoint.hostAndPort)
	}
	return p.dialPlain(ctx, p.endpoint.hostAndPort)
}

// dialTLS is the default implementation of the Dialer for ldaps URLs, used when Dialer is nil.
// Unfortunately, the go-ldap library does not seem to support dialing with a context.Context,
// so we implement it ourselves, heavily inspired by ldap.DialURL.
func (p *Provider) dialTLS(ctx context.Context, hostAndPort string) (Conn, error) {
	tlsConfig, err := p.tlsConfig(hostAndPort)
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	dialer := &tls.Dialer{NetDialer: p.netDialer(), Config: tlsConfig}
	c, err := dialer.DialContext(ctx, "tcp", hostAndPort)
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	conn := ldap.NewConn(c, true)
	conn.Start()
	return conn, nil
}

// dialPlain is the default implementation of the Dialer for ldap URLs, used when Dialer is nil.
// The connection is upgraded with StartTLS when configured to do so.
func (p *Provider) dialPlain(ctx context.Context, hostAndPort string) (Conn, error) {
	var tlsConfig *tls.Config
	if p.c.StartTLS {
		var err error
		if tlsConfig, err = p.tlsConfig(hostAndPort); err != nil {
			return nil, ldap.NewError(ldap.ErrorNetwork, err)
		}
	}

	c, err := p.netDialer().DialContext(ctx, "tcp", hostAndPort)
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	conn := ldap.NewConn(c, false)
	conn.Start()

	if tlsConfig != nil {
		conn.SetTimeout(p.c.Timeout)
		if err := conn.StartTLS(tlsConfig); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (p *Provider) netDialer() *net.Dialer {
	return &net.Dialer{Timeout: p.c.Timeout}
}

func (p *Provider) tlsConfig(hostAndPort string) (*tls.Config, error) {
	var rootCAs *x509.CertPool // nil means the system roots
	if len(p.c.CABundle) > 0 {
		rootCAs = x509.NewCertPool()
		if !rootCAs.AppendCertsFromPEM(p.c.CABundle) {
			return nil, fmt.Errorf("could not parse CA bundle")
		}
	}

	serverName, _, err := net.SplitHostPort(hostAndPort)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    rootCAs,
		ServerName: serverName,
	}, nil
}

// Adds the default port if hostAndPort did not already include a port.
func hostAndPortWithDefaultPort(hostAndPort string, defaultPort string) (string, error) {
	host, port, err := net.SplitHostPort(hostAndPort)
	if err != nil {
		if strings.HasSuffix(err.Error(), ": missing port in address") { // sad to need to do this string compare
			host = hostAndPort
			port = defaultPort
		} else {
			return "", err // hostAndPort argument was not parsable
		}
	}
	switch {
	case port != "" && strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]"):
		// don't add extra square brackets to an IPv6 address that already has them
		return host + ":" + port, nil
	case port != "":
		return net.JoinHostPort(host, port), nil
	default:
		return host, nil
	}
}
