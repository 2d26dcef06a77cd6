// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package here writes multi-line strings, mostly YAML config files and expected log lines in tests,
// indented along with the surrounding code.
package here

import (
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
)

const (
	tab        = "\t"
	fourSpaces = "    "
)

// Doc removes the common indentation of s.  Tabs become four spaces so the result is valid YAML.
func Doc(s string) string {
	return strings.ReplaceAll(heredoc.Doc(s), tab, fourSpaces)
}

// Docf is Doc with fmt.Sprintf style formatting.
func Docf(raw string, args ...any) string {
	return strings.ReplaceAll(heredoc.Docf(raw, args...), tab, fourSpaces)
}
