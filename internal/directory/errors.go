// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"errors"

	"go.pinniped.dev/kube-ldap/internal/constable"
)

// These errors are always wrapped with more detail.  Use errors.Is to check for them, or Classify to
// decide what an end user may be told.
const (
	// ErrConnection means the LDAP server could not be reached or did not answer in time.
	ErrConnection = constable.Error("LDAP connection error")
	// ErrServiceBind means the LDAP server rejected the configured bind account.
	ErrServiceBind = constable.Error("LDAP service account bind rejected")
	// ErrLookup means the user search itself failed.
	ErrLookup = constable.Error("LDAP user search failed")
	// ErrAmbiguousOrUnknownUser means the user search did not find exactly one entry.
	ErrAmbiguousOrUnknownUser = constable.Error("user not found or not unique")
	// ErrInvalidCredentials means the bind as the user was rejected.
	ErrInvalidCredentials = constable.Error("invalid credentials")
	// ErrMissingAttribute means a user entry does not satisfy the configured attribute mapping.
	ErrMissingAttribute = constable.Error("missing required attribute")
	// ErrMalformedDN means a distinguished name does not have the expected shape.
	ErrMalformedDN = constable.Error("malformed distinguished name")
)

// Outcome is the closed set of results which may be communicated to an end user.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRejected
	OutcomeServerError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	case OutcomeServerError:
		return "server error"
	default:
		return "unknown"
	}
}

// Classify maps the result of an authentication attempt to an Outcome.  Unknown users, ambiguous
// searches and wrong passwords are indistinguishable from the outside.  Everything else is a
// problem with the server, its configuration, or its directory data.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrAmbiguousOrUnknownUser), errors.Is(err, ErrInvalidCredentials):
		return OutcomeRejected
	default:
		return OutcomeServerError
	}
}
