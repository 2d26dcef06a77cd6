// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import "go.pinniped.dev/kube-ldap/internal/plog"

// Config contains knobs to setup an instance of kube-ldap.
type Config struct {
	Log     plog.LogSpec `json:"log"`
	Listen  ListenSpec   `json:"listen"`
	LDAP    LDAPSpec     `json:"ldap"`
	Mapping MappingSpec  `json:"mapping"`
	Token   TokenSpec    `json:"token"`
}

// ListenSpec configures the HTTP(S) listener.
type ListenSpec struct {
	// Address is a "host:port" to listen on, ":8081" when unset.
	Address *string `json:"address,omitempty"`
	TLS     TLSSpec `json:"tls"`
}

// TLSSpec enables TLS termination when CertFile and KeyFile are set.
type TLSSpec struct {
	CertFile string `json:"certFile,omitempty"`
	KeyFile  string `json:"keyFile,omitempty"`
	// ClientCAFile, when set, requires clients to present a certificate signed by one of its CAs.
	ClientCAFile string `json:"clientCAFile,omitempty"`
}

// Enabled returns whether TLS termination is configured.
func (t TLSSpec) Enabled() bool {
	return t.CertFile != "" || t.KeyFile != ""
}

// LDAPSpec configures the connection to the directory and the user search.
type LDAPSpec struct {
	URL            string `json:"url"`
	CAFile         string `json:"caFile,omitempty"`
	StartTLS       bool   `json:"startTLS,omitempty"`
	TimeoutSeconds *int64 `json:"timeoutSeconds,omitempty"`
	BindDN         string `json:"bindDN"`
	// BindPassword may be left out of the file and set with the KUBE_LDAP_BIND_PASSWORD environment variable.
	BindPassword       string  `json:"bindPassword,omitempty"`
	BaseDN             string  `json:"baseDN"`
	Filter             *string `json:"filter,omitempty"`
	PoolSize           *int64  `json:"poolSize,omitempty"`
	MaxIdleTimeSeconds *int64  `json:"maxIdleTimeSeconds,omitempty"`
}

// MappingSpec names the LDAP attributes which become claims.
type MappingSpec struct {
	Username           *string  `json:"username,omitempty"`
	UID                *string  `json:"uid,omitempty"`
	Groups             *string  `json:"groups,omitempty"`
	ExtraFields        []string `json:"extraFields,omitempty"`
	CanonicalizeGroups *bool    `json:"canonicalizeGroups,omitempty"`
}

// TokenSpec configures the issued tokens.
type TokenSpec struct {
	// SigningKey may be left out of the file and set with the KUBE_LDAP_SIGNING_KEY environment variable.
	SigningKey      string `json:"signingKey,omitempty"`
	LifetimeSeconds *int64 `json:"lifetimeSeconds,omitempty"`
}
