// Copyright 2021-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package upstreamldap implements authentication of end users against an upstream LDAP server
// with the bind-search-bind pattern.
package upstreamldap

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"go.pinniped.dev/kube-ldap/internal/claims"
	"go.pinniped.dev/kube-ldap/internal/directory"
	"go.pinniped.dev/kube-ldap/internal/plog"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultPoolSize    = 10
	defaultMaxIdleTime = 5 * time.Minute
)

// ProviderConfig includes all of the settings for connection and searching for users in the upstream LDAP IDP.
type ProviderConfig struct {
	// Name is used in logs to identify this upstream LDAP IDP.
	Name string

	// URL is "ldaps://host[:port]", "ldap://host[:port]" or a bare "host[:port]" which means ldaps.
	// When the port is not specified, the default port of the scheme will be used.
	URL string

	// PEM-encoded CA cert bundle to trust when connecting to the LDAP server. When empty, the system roots are used.
	CABundle []byte

	// StartTLS upgrades ldap URLs to TLS before any bind.
	StartTLS bool

	// Timeout applies to dialing and to each individual LDAP operation.
	Timeout time.Duration

	// BindUsername is the DN of the service account used to search for users.
	BindUsername string

	// BindPassword is the password of the service account.
	BindPassword string

	// UserSearch contains information about how to search for users in the upstream LDAP IDP.
	UserSearch UserSearchConfig

	// Mapping decides which attributes of the user entry become which claims.
	Mapping claims.MappingConfig

	// PoolSize is the maximum number of connections in use at once.
	PoolSize int64

	// MaxIdleTime is how long an unused connection is kept open.
	MaxIdleTime time.Duration

	// Dialer exists to enable testing. When nil, will use a default appropriate for production use.
	Dialer LDAPDialer

	// Clock exists to enable testing. When nil, the real clock is used.
	Clock clock.Clock

	// PoolObserver is notified about connection pool events. Can be nil.
	PoolObserver PoolObserver
}

// UserSearchConfig contains information about how to search for users in the upstream LDAP IDP.
type UserSearchConfig struct {
	// Base is the base DN to use for the user search in the upstream LDAP IDP.
	Base string

	// Filter is the filter to use for the user search in the upstream LDAP IDP.  Every "{}" or "%s"
	// is replaced by the escaped username.  When empty, a filter which matches the username attribute is used.
	Filter string
}

// Provider authenticates end users.  It is safe for concurrent use.
type Provider struct {
	c        ProviderConfig
	endpoint endpoint
	mapping  *claims.Mapping
	pool     *Pool
	clock    clock.Clock
}

// New creates a Provider.  Unset optional settings are defaulted.  No connection is made until the Provider is used.
func New(config ProviderConfig) (*Provider, error) {
	if config.Mapping.UsernameAttribute == directory.DistinguishedNameAttributeName && len(config.UserSearch.Filter) == 0 {
		// LDAP search filters do not allow searching by DN.
		return nil, fmt.Errorf(`must specify UserSearch Filter when Mapping UsernameAttribute is "dn"`)
	}
	if len(config.UserSearch.Filter) == 0 {
		config.UserSearch.Filter = fmt.Sprintf("(%s=%s)", config.Mapping.UsernameAttribute, userSearchFilterInterpolationLocationMarker)
	}

	e, err := parseServerURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid LDAP URL: %w", err)
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.PoolSize <= 0 {
		config.PoolSize = defaultPoolSize
	}
	if config.MaxIdleTime <= 0 {
		config.MaxIdleTime = defaultMaxIdleTime
	}
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}

	p := &Provider{
		c:        config,
		endpoint: e,
		mapping:  claims.NewMapping(config.Mapping),
		clock:    config.Clock,
	}
	attributes := p.mapping.RequestedAttributes()
	p.pool = newPool(
		p.dialWithTimeout,
		func(conn Conn) *Client { return newClient(conn, &p.c, attributes) },
		config.PoolSize,
		config.MaxIdleTime,
		config.Clock,
		config.PoolObserver,
	)
	return p, nil
}

// GetName returns the name of this upstream provider.
func (p *Provider) GetName() string {
	return p.c.Name
}

// GetURL returns the normalized URL of the LDAP server, e.g. "ldaps://host.example.com:636".
func (p *Provider) GetURL() string {
	return p.endpoint.String()
}

// Close closes all idle connections.
func (p *Provider) Close() {
	p.pool.Close()
}

func (p *Provider) dialWithTimeout(ctx context.Context) (Conn, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf(`error dialing host %q: %w`, p.endpoint.hostAndPort, err)
	}
	conn.SetTimeout(p.c.Timeout)
	return conn, nil
}

// TestConnection dials and binds as the service account, to check the connection and bind settings at startup.
func (p *Provider) TestConnection(ctx context.Context) error {
	client, err := p.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer p.release(client)

	return client.BindService()
}

// AuthenticateUser checks the password of username and returns the claims of the user.  Rejections are reported
// as directory.ErrAmbiguousOrUnknownUser or directory.ErrInvalidCredentials, which directory.Classify treats alike.
func (p *Provider) AuthenticateUser(ctx context.Context, username, password string) (*claims.Claims, error) {
	if len(username) == 0 || len(password) == 0 {
		return nil, fmt.Errorf("%w: empty username or password", directory.ErrInvalidCredentials)
	}

	record, err := p.checkoutAndBindUser(ctx, username, password)
	if err != nil {
		return nil, err
	}

	c, err := p.mapping.Map(record)
	if err != nil {
		return nil, err
	}
	c.IssuedAt = p.clock.Now()
	return c, nil
}

func (p *Provider) checkoutAndBindUser(ctx context.Context, username, password string) (directory.UserRecord, error) {
	client, err := p.pool.Get(ctx)
	if err != nil {
		return directory.UserRecord{}, err
	}
	defer p.release(client)

	return p.searchAndBindUser(client, username, password)
}

func (p *Provider) searchAndBindUser(client *Client, username, password string) (directory.UserRecord, error) {
	if err := client.BindService(); err != nil {
		return directory.UserRecord{}, err
	}

	records, err := client.Search(p.c.UserSearch.Filter, username)
	if err != nil {
		return directory.UserRecord{}, err
	}
	if len(records) != 1 {
		plog.Debug("user search did not find exactly one entry (if this username is valid, please check the user search configuration)",
			"upstreamName", p.GetName(), "username", username, "entries", len(records))
		return directory.UserRecord{}, fmt.Errorf(`%w: found %d entries for username %q`,
			directory.ErrAmbiguousOrUnknownUser, len(records), username)
	}
	record := records[0]

	// Caution: any other LDAP commands after this bind will be run as this user until the connection is released.
	ok, err := client.BindAs(record.DN(), password)
	if err != nil {
		return directory.UserRecord{}, err
	}
	if !ok {
		return directory.UserRecord{}, fmt.Errorf(`%w: bind rejected for username %q`, directory.ErrInvalidCredentials, username)
	}

	return record, nil
}

// release resets the client and returns it to the pool.  It runs on every exit path of a checkout.
func (p *Provider) release(client *Client) {
	if err := client.Reset(); err != nil {
		plog.WarningErr("could not reset LDAP connection, it will be closed", err, "upstreamName", p.GetName())
	}
	p.pool.Put(client)
}
