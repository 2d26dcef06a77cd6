// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entrypoint of the kube-ldap authentication server.
package main

import (
	"os"

	"go.pinniped.dev/kube-ldap/cmd/kube-ldap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
