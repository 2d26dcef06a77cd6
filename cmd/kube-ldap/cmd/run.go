// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"k8s.io/utils/clock"

	"go.pinniped.dev/kube-ldap/internal/config"
	"go.pinniped.dev/kube-ldap/internal/directory"
	"go.pinniped.dev/kube-ldap/internal/metrics"
	"go.pinniped.dev/kube-ldap/internal/plog"
	"go.pinniped.dev/kube-ldap/internal/pversion"
	"go.pinniped.dev/kube-ldap/internal/server"
	"go.pinniped.dev/kube-ldap/internal/token"
	"go.pinniped.dev/kube-ldap/internal/upstreamldap"
)

func run(ctx context.Context, configPath string) error {
	cfg, err := config.FromPath(ctx, configPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	plog.Info("Running kube-ldap", "version", versionInfo(pversion.Get()), "config", configPath, "ldapURL", cfg.LDAP.URL)

	m := metrics.New()

	providerConfig, err := cfg.ProviderConfig()
	if err != nil {
		return fmt.Errorf("could not configure LDAP: %w", err)
	}
	providerConfig.PoolObserver = m

	provider, err := upstreamldap.New(providerConfig)
	if err != nil {
		return fmt.Errorf("could not configure LDAP: %w", err)
	}
	defer provider.Close()

	if err := provider.TestConnection(ctx); err != nil {
		if errors.Is(err, directory.ErrServiceBind) {
			return fmt.Errorf("could not bind as the LDAP service account: %w", err)
		}
		plog.WarningErr("LDAP server is not reachable yet, will retry on each request", err, "url", provider.GetURL())
	}

	codec, err := token.NewCodec([]byte(cfg.Token.SigningKey), clock.RealClock{})
	if err != nil {
		return fmt.Errorf("could not configure tokens: %w", err)
	}

	var tlsConfig *tls.Config
	if cfg.Listen.TLS.Enabled() {
		tlsConfig, err = server.TLSConfig(cfg.Listen.TLS.CertFile, cfg.Listen.TLS.KeyFile, cfg.Listen.TLS.ClientCAFile)
		if err != nil {
			return err
		}
	}

	l, err := net.Listen("tcp", *cfg.Listen.Address)
	if err != nil {
		return fmt.Errorf("could not listen: %w", err)
	}

	defer plog.Debug("kube-ldap exiting")

	return server.New(server.Config{
		Authenticator: provider,
		Codec:         codec,
		TokenLifetime: cfg.TokenLifetime(),
		Metrics:       m,
		Clock:         clock.RealClock{},
	}).Serve(ctx, l, tlsConfig)
}

type versionInfo pversion.Info // hide .String() method from plog
