// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

// Package auth resolves DJ identity from client-supplied tokens.
//
// Token issuance lives in the Mixcast account service; the relay only
// validates. An invalid or missing token is not an error for the caller —
// registration falls back to an anonymous identity with the requested name.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DJIdentity is the resolved identity of a registering DJ connection.
type DJIdentity struct {
	UserID      string
	DisplayName string
	Verified    bool
}

// TokenValidator resolves a bearer token to a DJ identity.
// Implementations must treat validation as read-only and side-effect free.
type TokenValidator interface {
	// Validate returns the identity for a valid token, or an error.
	// Callers treat any error as "anonymous", never as a hard failure.
	Validate(token string) (*DJIdentity, error)
}

// Claims are the JWT claims issued by the account service.
type Claims struct {
	DJName string `json:"dj_name"`
	jwt.RegisteredClaims
}

// ErrNoSecret indicates the validator was built without a signing secret.
var ErrNoSecret = errors.New("jwt secret not configured")

// JWTValidator validates HS256-signed DJ tokens.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator for the given shared secret.
// An empty secret yields a validator that rejects every token, which keeps
// the anonymous fallback path as the only behavior.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses and verifies the token, returning the DJ identity.
func (v *JWTValidator) Validate(tokenString string) (*DJIdentity, error) {
	if len(v.secret) == 0 {
		return nil, ErrNoSecret
	}
	if tokenString == "" {
		return nil, errors.New("empty token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	name := claims.DJName
	if name == "" {
		name = claims.Subject
	}
	return &DJIdentity{
		UserID:      claims.Subject,
		DisplayName: name,
		Verified:    true,
	}, nil
}
