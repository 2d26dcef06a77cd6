// Copyright 2021-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package directory contains common LDAP functionality needed by kube-ldap: the user record returned by a
// directory search, the error taxonomy of authentication, and distinguished name helpers.
package directory

import (
	"sort"
	"strings"
)

// DistinguishedNameAttributeName is a pseudo attribute name which refers to the DN of an entry
// rather than to one of its attributes.
const DistinguishedNameAttributeName = "dn"

// UserRecord is a single entry found by a user search.  It is immutable once created.
type UserRecord struct {
	dn         string
	attributes map[string][]string
}

// NewUserRecord copies attributes so that later changes by the caller do not affect the record.
func NewUserRecord(dn string, attributes map[string][]string) UserRecord {
	copied := make(map[string][]string, len(attributes))
	for name, values := range attributes {
		copied[name] = append([]string(nil), values...)
	}
	return UserRecord{dn: dn, attributes: copied}
}

// DN returns the distinguished name of the entry.
func (r UserRecord) DN() string {
	return r.dn
}

// Attribute returns a copy of the values of the named attribute.  LDAP attribute names are case-insensitive,
// so an exact match is preferred but any case-insensitive match will do.  The pseudo attribute "dn"
// returns the DN of the entry.
func (r UserRecord) Attribute(name string) ([]string, bool) {
	if name == DistinguishedNameAttributeName {
		return []string{r.dn}, true
	}
	if values, ok := r.attributes[name]; ok {
		return append([]string(nil), values...), true
	}
	for attributeName, values := range r.attributes {
		if strings.EqualFold(attributeName, name) {
			return append([]string(nil), values...), true
		}
	}
	return nil, false
}

// AttributeNames returns the sorted names of all attributes of the record.
func (r UserRecord) AttributeNames() []string {
	names := make([]string, 0, len(r.attributes))
	for name := range r.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
