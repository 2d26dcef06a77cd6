// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package claims

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"

	"go.pinniped.dev/kube-ldap/internal/directory"
)

// MappingConfig binds claims to LDAP attribute names.  Any attribute name may be "dn" to use the DN of the entry.
type MappingConfig struct {
	// UsernameAttribute is required on every user entry and becomes the subject.
	UsernameAttribute string
	// UIDAttribute is required on every user entry and must have exactly one non-empty value.
	UIDAttribute string
	// GroupsAttribute is optional on user entries; a missing attribute means no groups.
	GroupsAttribute string
	// ExtraFieldAttributes are copied into the extra claims when present.
	ExtraFieldAttributes sets.Set[string]
	// CanonicalizeGroups replaces each group DN with the value of its leading RDN, e.g. "admins" for "cn=admins,ou=groups".
	CanonicalizeGroups bool
}

// Mapping turns user records into Claims.  It has no side effects and is safe for concurrent use.
type Mapping struct {
	config MappingConfig
}

func NewMapping(config MappingConfig) *Mapping {
	config.ExtraFieldAttributes = config.ExtraFieldAttributes.Clone()
	return &Mapping{config: config}
}

// RequestedAttributes are the attribute names which a user search needs to return for Map to work.
func (m *Mapping) RequestedAttributes() []string {
	requested := sets.New[string]()
	for _, name := range []string{m.config.UsernameAttribute, m.config.UIDAttribute, m.config.GroupsAttribute} {
		if name != "" {
			requested.Insert(name)
		}
	}
	requested = requested.Union(m.config.ExtraFieldAttributes)
	requested.Delete(directory.DistinguishedNameAttributeName)
	return sets.List(requested)
}

// Map returns the subject, uid, groups and extra claims of record.  The timestamps are left to the caller.
func (m *Mapping) Map(record directory.UserRecord) (*Claims, error) {
	subject, err := singleValue(record, m.config.UsernameAttribute)
	if err != nil {
		return nil, err
	}

	uid, err := singleValue(record, m.config.UIDAttribute)
	if err != nil {
		return nil, err
	}

	groups, err := m.groups(record)
	if err != nil {
		return nil, err
	}

	var extra map[string][]string
	for _, name := range sets.List(m.config.ExtraFieldAttributes) {
		values, ok := record.Attribute(name)
		if !ok {
			continue
		}
		if extra == nil {
			extra = make(map[string][]string)
		}
		extra[name] = values
	}

	return &Claims{
		Subject: subject,
		UID:     uid,
		Groups:  groups,
		Extra:   extra,
	}, nil
}

func (m *Mapping) groups(record directory.UserRecord) ([]string, error) {
	values, _ := record.Attribute(m.config.GroupsAttribute)
	groups := make([]string, 0, len(values))
	for _, value := range values {
		if !m.config.CanonicalizeGroups {
			groups = append(groups, value)
			continue
		}
		name, err := directory.CanonicalizeDN(value)
		if err != nil {
			return nil, fmt.Errorf("group of %q: %w", record.DN(), err)
		}
		groups = append(groups, name)
	}
	return groups, nil
}

func singleValue(record directory.UserRecord, attributeName string) (string, error) {
	values, ok := record.Attribute(attributeName)
	if !ok || len(values) == 0 {
		return "", fmt.Errorf("%w %q on %q", directory.ErrMissingAttribute, attributeName, record.DN())
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%w: found %d values for attribute %q on %q, but expected 1",
			directory.ErrMissingAttribute, len(values), attributeName, record.DN())
	}
	if len(values[0]) == 0 {
		return "", fmt.Errorf("%w: found empty value for attribute %q on %q",
			directory.ErrMissingAttribute, attributeName, record.DN())
	}
	return values[0], nil
}
