// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package upstreamldap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"k8s.io/apimachinery/pkg/util/sets"

	"go.pinniped.dev/kube-ldap/internal/directory"
	"go.pinniped.dev/kube-ldap/internal/plog"
)

const (
	// userSearchFilterInterpolationLocationMarker is replaced by the escaped username in the filter template.
	userSearchFilterInterpolationLocationMarker = "{}"
	// legacyUserSearchFilterInterpolationLocationMarker is accepted for filters such as "(uid=%s)".
	legacyUserSearchFilterInterpolationLocationMarker = "%s"

	// userSearchSizeLimit is enough to tell a unique match from an ambiguous one.
	userSearchSizeLimit = 2
)

// bindState is the identity a connection is currently bound as.
type bindState int

const (
	bindStateUnbound bindState = iota
	bindStateService
	bindStateUser
)

func (s bindState) String() string {
	switch s {
	case bindStateUnbound:
		return "unbound"
	case bindStateService:
		return "service"
	case bindStateUser:
		return "user"
	default:
		return "unknown"
	}
}

// transportResultCodes are the go-ldap result codes which mean the request may not have reached the server
// or the server could not process it, as opposed to a server decision about the request.
//
//nolint:gochecknoglobals
var transportResultCodes = sets.New[uint16](
	ldap.ErrorNetwork,
	ldap.ErrorUnexpectedMessage,
	ldap.ErrorUnexpectedResponse,
	ldap.LDAPResultBusy,
	ldap.LDAPResultUnavailable,
)

func isTransportError(err error) bool {
	var ldapErr *ldap.Error
	if !errors.As(err, &ldapErr) {
		return true
	}
	return transportResultCodes.Has(ldapErr.ResultCode)
}

// Client is a single checked out LDAP connection together with the identity it is bound as.
// A Client is not safe for concurrent use; the Pool hands each one to a single owner at a time.
type Client struct {
	conn   Conn
	config *ProviderConfig
	// attributes are requested by every user search.
	attributes []string

	state   bindState
	boundDN string
	broken  bool

	lastUsed time.Time
}

func newClient(conn Conn, config *ProviderConfig, attributes []string) *Client {
	return &Client{
		conn:       conn,
		config:     config,
		attributes: attributes,
	}
}

// BindService binds as the configured service account.
func (c *Client) BindService() error {
	if err := c.bind(c.config.BindUsername, c.config.BindPassword); err != nil {
		if isTransportError(err) {
			return fmt.Errorf(`%w: error binding as %q: %w`, directory.ErrConnection, c.config.BindUsername, err)
		}
		return fmt.Errorf(`%w: error binding as %q: %w`, directory.ErrServiceBind, c.config.BindUsername, err)
	}
	c.state, c.boundDN = bindStateService, c.config.BindUsername
	return nil
}

// Search looks up the entries matching filterTemplate for username under the configured base DN.
// The connection must be bound as the service account.  A search which hits the size limit returns the
// partial results so that the caller sees more than one entry.
func (c *Client) Search(filterTemplate, username string) ([]directory.UserRecord, error) {
	if c.state != bindStateService {
		return nil, fmt.Errorf("%w: connection is %s, not bound as the service account", directory.ErrLookup, c.state)
	}

	searchResult, err := c.conn.Search(c.userSearchRequest(filterTemplate, username))
	if err != nil {
		switch {
		case ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && searchResult != nil:
			plog.Debug("user search exceeded size limit", "username", username, "entries", len(searchResult.Entries))
		case isTransportError(err):
			c.broken = true
			return nil, fmt.Errorf(`%w: %w: error searching for user %q: %w`, directory.ErrLookup, directory.ErrConnection, username, err)
		default:
			return nil, fmt.Errorf(`%w: error searching for user %q: %w`, directory.ErrLookup, username, err)
		}
	}

	records := make([]directory.UserRecord, 0, len(searchResult.Entries))
	for _, entry := range searchResult.Entries {
		if len(entry.DN) == 0 {
			return nil, fmt.Errorf(`%w: searching for user %q resulted in search result without DN`, directory.ErrLookup, username)
		}
		attributes := make(map[string][]string, len(entry.Attributes))
		for _, attribute := range entry.Attributes {
			attributes[attribute.Name] = attribute.Values
		}
		records = append(records, directory.NewUserRecord(entry.DN, attributes))
	}
	return records, nil
}

// BindAs binds as dn to check password.  A rejected bind returns false without an error and leaves the
// connection unbound.  Only transport failures return an error.
func (c *Client) BindAs(dn, password string) (bool, error) {
	if len(password) == 0 {
		// an empty password would be an unauthenticated bind, which most servers accept for any DN
		return false, nil
	}

	if err := c.bind(dn, password); err != nil {
		if isTransportError(err) {
			return false, fmt.Errorf(`%w: error binding as %q: %w`, directory.ErrConnection, dn, err)
		}
		plog.DebugErr("bind as user rejected", err, "dn", dn)
		return false, nil
	}
	c.state, c.boundDN = bindStateUser, dn
	return true, nil
}

// Reset makes the connection anonymous again.  When that fails the connection is marked broken so that
// it will be closed instead of being reused.
func (c *Client) Reset() error {
	if c.broken {
		return nil
	}
	if err := c.conn.UnauthenticatedBind(""); err != nil {
		c.broken = true
		return fmt.Errorf("%w: error resetting connection bound as %q: %w", directory.ErrConnection, c.boundDN, err)
	}
	c.state, c.boundDN = bindStateUnbound, ""
	return nil
}

// bind forgets the current identity before binding, since a failed bind leaves an LDAP connection anonymous.
func (c *Client) bind(dn, password string) error {
	c.state, c.boundDN = bindStateUnbound, ""
	err := c.conn.Bind(dn, password)
	if err != nil && isTransportError(err) {
		c.broken = true
	}
	return err
}

func (c *Client) reusable() bool {
	return !c.broken && c.state == bindStateUnbound && !c.conn.IsClosing()
}

func (c *Client) userSearchRequest(filterTemplate, username string) *ldap.SearchRequest {
	// See https://ldap.com/the-ldap-search-operation for general documentation of LDAP search options.
	return &ldap.SearchRequest{
		BaseDN:       c.config.UserSearch.Base,
		Scope:        ldap.ScopeWholeSubtree,
		DerefAliases: ldap.DerefAlways,
		SizeLimit:    userSearchSizeLimit,
		TimeLimit:    int(c.config.Timeout.Seconds()),
		TypesOnly:    false,
		Filter:       userSearchFilter(filterTemplate, username),
		Attributes:   c.attributes,
		Controls:     nil, // this could be used to enable paging, but we're already limiting the result max size
	}
}

func userSearchFilter(filterTemplate, username string) string {
	// The username is end-user input, so it must be escaped before being included in a search to prevent query injection.
	safeUsername := ldap.EscapeFilter(username)
	filter := strings.NewReplacer(
		userSearchFilterInterpolationLocationMarker, safeUsername,
		legacyUserSearchFilterInterpolationLocationMarker, safeUsername,
	).Replace(filterTemplate)
	if strings.HasPrefix(filter, "(") && strings.HasSuffix(filter, ")") {
		return filter
	}
	return "(" + filter + ")"
}
