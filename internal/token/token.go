// Copyright 2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package token issues and verifies the signed, time-limited tokens which assert the claims of an
// authenticated user.  Tokens are compact JWS (HS256) JWTs.
package token

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"k8s.io/utils/clock"

	"go.pinniped.dev/kube-ldap/internal/claims"
	"go.pinniped.dev/kube-ldap/internal/constable"
)

// MinKeyLength is the minimum length of a signing key, which is the output size of the HS256 hash.
const MinKeyLength = 32

const (
	ErrInvalidKey       = constable.Error("token signing key is too short")
	ErrInvalidSignature = constable.Error("token signature is invalid")
	ErrExpired          = constable.Error("token is expired")
	ErrMalformed        = constable.Error("token is missing required claims")
)

// signatureAlgorithm is the only algorithm which is used to sign and which is accepted when verifying.
const signatureAlgorithm = jose.HS256

// tokenClaims is the payload of a token.
type tokenClaims struct {
	jwt.Claims
	UID    string              `json:"uid"`
	Groups []string            `json:"groups"`
	Extra  map[string][]string `json:"extra,omitempty"`
}

// Codec signs and verifies tokens with a single symmetric key.  It is safe for concurrent use.
type Codec struct {
	key    []byte
	signer jose.Signer
	clock  clock.Clock
}

// NewCodec returns a Codec for key, which must be at least MinKeyLength bytes long.
func NewCodec(key []byte, clock clock.Clock) (*Codec, error) {
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrInvalidKey, len(key), MinKeyLength)
	}

	key = append([]byte(nil), key...)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: signatureAlgorithm, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create token signer: %w", err)
	}

	return &Codec{key: key, signer: signer, clock: clock}, nil
}

// Issue signs c into a token which expires after lifetime.  It fills in c.ExpiresAt, and c.IssuedAt when
// it is zero.  Both are truncated to whole seconds since that is the precision of the token.
func (c *Codec) Issue(userClaims *claims.Claims, lifetime time.Duration) (string, error) {
	if userClaims.IssuedAt.IsZero() {
		userClaims.IssuedAt = c.clock.Now()
	}
	userClaims.IssuedAt = userClaims.IssuedAt.Truncate(time.Second).UTC()
	userClaims.ExpiresAt = c.clock.Now().Add(lifetime).Truncate(time.Second).UTC()

	groups := userClaims.Groups
	if groups == nil {
		groups = []string{}
	}

	token, err := jwt.Signed(c.signer).Claims(&tokenClaims{
		Claims: jwt.Claims{
			Subject:  userClaims.Subject,
			IssuedAt: jwt.NewNumericDate(userClaims.IssuedAt),
			Expiry:   jwt.NewNumericDate(userClaims.ExpiresAt),
		},
		UID:    userClaims.UID,
		Groups: groups,
		Extra:  userClaims.Extra,
	}).Serialize()
	if err != nil {
		return "", fmt.Errorf("could not sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature of token before decoding its claims, then checks that it has not expired.
func (c *Codec) Verify(token string) (*claims.Claims, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{signatureAlgorithm})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	var decoded tokenClaims
	// Claims verifies the signature with the key before it decodes anything.
	if err := parsed.Claims(c.key, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	if decoded.Expiry == nil || decoded.IssuedAt == nil || len(decoded.Subject) == 0 {
		return nil, ErrMalformed
	}

	expiresAt := decoded.Expiry.Time().UTC()
	if now := c.clock.Now(); !now.Before(expiresAt) {
		return nil, fmt.Errorf("%w: expired at %s", ErrExpired, expiresAt.Format(time.RFC3339))
	}

	groups := decoded.Groups
	if groups == nil {
		groups = []string{}
	}

	return &claims.Claims{
		Subject:   decoded.Subject,
		UID:       decoded.UID,
		Groups:    groups,
		Extra:     decoded.Extra,
		IssuedAt:  decoded.IssuedAt.Time().UTC(),
		ExpiresAt: expiresAt,
	}, nil
}
