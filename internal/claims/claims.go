// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package claims maps LDAP user entries to the identity claims which are asserted by issued tokens.
package claims

import (
	"time"

	"k8s.io/apiserver/pkg/authentication/user"
)

// Claims is the identity asserted by a token.
type Claims struct {
	// Subject is the username of the user.
	Subject string
	// UID is a unique and stable identifier of the user.
	UID string
	// Groups are the names of the groups the user belongs to, in directory order.
	Groups []string
	// Extra holds additional attributes of the user, keyed by attribute name.
	Extra map[string][]string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserInfo returns the Kubernetes user described by the claims.
func (c *Claims) UserInfo() user.Info {
	var extra map[string][]string
	if len(c.Extra) > 0 {
		extra = make(map[string][]string, len(c.Extra))
		for k, v := range c.Extra {
			extra[k] = append([]string(nil), v...)
		}
	}
	return &user.DefaultInfo{
		Name:   c.Subject,
		UID:    c.UID,
		Groups: append([]string{}, c.Groups...),
		Extra:  extra,
	}
}
