// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cmd contains the commands of the kube-ldap binary.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go.pinniped.dev/kube-ldap/internal/here"
	"go.pinniped.dev/kube-ldap/internal/plog"
)

type runFunc func(ctx context.Context, configPath string) error

func newRootCommand(run runFunc) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "kube-ldap",
		Short: "Authenticate Kubernetes users against an LDAP directory",
		Long: here.Doc(`
			kube-ldap exchanges LDAP credentials for signed, time limited tokens
			on GET /auth and verifies those tokens for the Kubernetes API server
			as a TokenReview webhook on POST /token.
		`),
		Args:         cobra.NoArgs,
		SilenceUsage: true, // do not print usage message when commands fail
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}

	cmd.AddCommand(newVersionCommand())
	return cmd
}

// Execute runs the root command until its context is cancelled by SIGINT or SIGTERM.
func Execute() error {
	defer plog.Setup()()

	err := newRootCommand(run).ExecuteContext(signalCtx())
	if err != nil {
		plog.Error("kube-ldap exited with an error", err)
	}
	return err
}

func signalCtx() context.Context {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()

		s := <-signalCh
		plog.Debug("saw signal", "signal", s)
	}()

	return ctx
}
