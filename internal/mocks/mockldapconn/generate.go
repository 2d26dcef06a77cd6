// Copyright 2021-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package mockldapconn

//go:generate go run -v go.uber.org/mock/mockgen  -destination=mockldapconn.go -package=mockldapconn -copyright_file=../../../hack/header.txt go.pinniped.dev/kube-ldap/internal/upstreamldap Conn
