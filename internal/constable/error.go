// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package constable provides a string type which can be used to declare constant sentinel errors.
package constable

var _ error = Error("")

// Error is an error which can be declared as a const, e.g. const ErrExpired = constable.Error("token expired").
// Two Errors with the same text are equal, so errors.Is works across wrapping.
type Error string

func (e Error) Error() string {
	return string(e)
}
