// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"fmt"
	"strings"
)

// CanonicalizeDN returns the value of the leading relative distinguished name of dn,
// e.g. "alice" for "uid=alice,ou=people,dc=example,dc=com".  Only the text before the first comma is
// inspected.  The value is the text between its first and second "=", returned without unescaping.
func CanonicalizeDN(dn string) (string, error) {
	rdn, _, _ := strings.Cut(dn, ",")
	_, rest, found := strings.Cut(rdn, "=")
	if !found {
		return "", fmt.Errorf("%w %q: no \"=\" in leading component %q", ErrMalformedDN, dn, rdn)
	}
	value, _, _ := strings.Cut(rest, "=")
	return value, nil
}
