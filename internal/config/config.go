// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config contains functionality to load a Config from a file.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"

	"go.pinniped.dev/kube-ldap/internal/claims"
	"go.pinniped.dev/kube-ldap/internal/constable"
	"go.pinniped.dev/kube-ldap/internal/plog"
	"go.pinniped.dev/kube-ldap/internal/token"
	"go.pinniped.dev/kube-ldap/internal/upstreamldap"
)

const (
	// BindPasswordEnvVar overrides ldap.bindPassword.
	BindPasswordEnvVar = "KUBE_LDAP_BIND_PASSWORD"
	// SigningKeyEnvVar overrides token.signingKey.
	SigningKeyEnvVar = "KUBE_LDAP_SIGNING_KEY"

	defaultListenAddress        = ":8081"
	defaultTimeoutSeconds       = 10
	defaultPoolSize             = 10
	defaultMaxIdleTimeSeconds   = 300
	defaultTokenLifetimeSeconds = 28800
	defaultFilter               = "(uid=%s)"
	defaultUsernameAttribute    = "uid"
	defaultUIDAttribute         = "uid"
	defaultGroupsAttribute      = "memberOf"
)

// FromPath loads a Config from a provided local file path, inserts any
// defaults (from the Config documentation), and verifies that the config is
// valid (Config documentation).  The global logger is configured from the log section.
func FromPath(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var config Config
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	maybeOverrideFromEnv(&config.LDAP.BindPassword, BindPasswordEnvVar)
	maybeOverrideFromEnv(&config.Token.SigningKey, SigningKeyEnvVar)

	maybeSetListenDefaults(&config.Listen)
	maybeSetLDAPDefaults(&config.LDAP)
	maybeSetMappingDefaults(&config.Mapping)
	maybeSetTokenDefaults(&config.Token)

	if err := validateListen(config.Listen); err != nil {
		return nil, fmt.Errorf("validate listen: %w", err)
	}
	if err := validateLDAP(config.LDAP); err != nil {
		return nil, fmt.Errorf("validate ldap: %w", err)
	}
	if err := validateToken(config.Token); err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}

	if err := plog.ValidateAndSetLogLevelAndFormatGlobally(ctx, config.Log); err != nil {
		return nil, fmt.Errorf("validate log level: %w", err)
	}

	return &config, nil
}

// ProviderConfig returns the settings of the upstream LDAP provider.  The CA file is read here.
func (c *Config) ProviderConfig() (upstreamldap.ProviderConfig, error) {
	var caBundle []byte
	if c.LDAP.CAFile != "" {
		var err error
		caBundle, err = os.ReadFile(c.LDAP.CAFile)
		if err != nil {
			return upstreamldap.ProviderConfig{}, fmt.Errorf("read ldap caFile: %w", err)
		}
	}

	return upstreamldap.ProviderConfig{
		Name:         c.LDAP.URL,
		URL:          c.LDAP.URL,
		CABundle:     caBundle,
		StartTLS:     c.LDAP.StartTLS,
		Timeout:      seconds(c.LDAP.TimeoutSeconds),
		BindUsername: c.LDAP.BindDN,
		BindPassword: c.LDAP.BindPassword,
		UserSearch: upstreamldap.UserSearchConfig{
			Base:   c.LDAP.BaseDN,
			Filter: *c.LDAP.Filter,
		},
		Mapping: claims.MappingConfig{
			UsernameAttribute:    *c.Mapping.Username,
			UIDAttribute:         *c.Mapping.UID,
			GroupsAttribute:      *c.Mapping.Groups,
			ExtraFieldAttributes: sets.New(c.Mapping.ExtraFields...),
			CanonicalizeGroups:   *c.Mapping.CanonicalizeGroups,
		},
		PoolSize:    *c.LDAP.PoolSize,
		MaxIdleTime: seconds(c.LDAP.MaxIdleTimeSeconds),
	}, nil
}

// TokenLifetime returns how long issued tokens are valid.
func (c *Config) TokenLifetime() time.Duration {
	return seconds(c.Token.LifetimeSeconds)
}

func seconds(s *int64) time.Duration {
	return time.Duration(*s) * time.Second
}

func maybeOverrideFromEnv(value *string, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok {
		*value = v
	}
}

func maybeSetListenDefaults(listen *ListenSpec) {
	if listen.Address == nil {
		listen.Address = ptr.To(defaultListenAddress)
	}
}

func maybeSetLDAPDefaults(ldapSpec *LDAPSpec) {
	if ldapSpec.TimeoutSeconds == nil {
		ldapSpec.TimeoutSeconds = ptr.To[int64](defaultTimeoutSeconds)
	}
	if ldapSpec.Filter == nil {
		ldapSpec.Filter = ptr.To(defaultFilter)
	}
	if ldapSpec.PoolSize == nil {
		ldapSpec.PoolSize = ptr.To[int64](defaultPoolSize)
	}
	if ldapSpec.MaxIdleTimeSeconds == nil {
		ldapSpec.MaxIdleTimeSeconds = ptr.To[int64](defaultMaxIdleTimeSeconds)
	}
}

func maybeSetMappingDefaults(mapping *MappingSpec) {
	if mapping.Username == nil {
		mapping.Username = ptr.To(defaultUsernameAttribute)
	}
	if mapping.UID == nil {
		mapping.UID = ptr.To(defaultUIDAttribute)
	}
	if mapping.Groups == nil {
		mapping.Groups = ptr.To(defaultGroupsAttribute)
	}
	if mapping.CanonicalizeGroups == nil {
		mapping.CanonicalizeGroups = ptr.To(true)
	}
}

func maybeSetTokenDefaults(tokenSpec *TokenSpec) {
	if tokenSpec.LifetimeSeconds == nil {
		tokenSpec.LifetimeSeconds = ptr.To[int64](defaultTokenLifetimeSeconds)
	}
}

func validateListen(listen ListenSpec) error {
	if len(*listen.Address) == 0 {
		return constable.Error("address must not be empty")
	}
	if (listen.TLS.CertFile == "") != (listen.TLS.KeyFile == "") {
		return constable.Error("tls certFile and keyFile must be set together")
	}
	if listen.TLS.ClientCAFile != "" && !listen.TLS.Enabled() {
		return constable.Error("tls clientCAFile requires certFile and keyFile")
	}
	return nil
}

func validateLDAP(ldapSpec LDAPSpec) error {
	missing := []string{}
	if ldapSpec.URL == "" {
		missing = append(missing, "url")
	}
	if ldapSpec.BaseDN == "" {
		missing = append(missing, "baseDN")
	}
	if ldapSpec.BindDN == "" {
		missing = append(missing, "bindDN")
	}
	if ldapSpec.BindPassword == "" {
		missing = append(missing, "bindPassword")
	}
	if len(missing) > 0 {
		return constable.Error("missing required fields: " + strings.Join(missing, ", "))
	}

	if *ldapSpec.TimeoutSeconds <= 0 {
		return constable.Error("timeoutSeconds must be positive")
	}
	if *ldapSpec.PoolSize <= 0 {
		return constable.Error("poolSize must be positive")
	}
	if *ldapSpec.MaxIdleTimeSeconds <= 0 {
		return constable.Error("maxIdleTimeSeconds must be positive")
	}
	if len(*ldapSpec.Filter) == 0 {
		return constable.Error("filter must not be empty")
	}
	return nil
}

func validateToken(tokenSpec TokenSpec) error {
	if len(tokenSpec.SigningKey) < token.MinKeyLength {
		return fmt.Errorf("signingKey must be at least %d bytes", token.MinKeyLength)
	}
	if *tokenSpec.LifetimeSeconds <= 0 {
		return constable.Error("lifetimeSeconds must be positive")
	}
	return nil
}
