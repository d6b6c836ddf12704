// Mixcast - Live DJ Session Relay
// Copyright 2026 Mixcast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mixcast/mixcast

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestValidateAcceptsSignedToken(t *testing.T) {
	v := NewJWTValidator(testSecret)
	token := signToken(t, testSecret, Claims{
		DJName: "DJ Nova",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	id, err := v.Validate(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if id.UserID != "user-1" || id.DisplayName != "DJ Nova" || !id.Verified {
		t.Errorf("identity = %+v", id)
	}
}

func TestValidateFallsBackToSubjectForName(t *testing.T) {
	v := NewJWTValidator(testSecret)
	token := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	id, err := v.Validate(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if id.DisplayName != "user-2" {
		t.Errorf("display name = %q, want subject fallback", id.DisplayName)
	}
}

func TestValidateRejections(t *testing.T) {
	v := NewJWTValidator(testSecret)

	expired := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	wrongKey := signToken(t, "another-secret-another-secret-xx", Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not.a.token"},
		{"expired", expired},
		{"wrong key", wrongKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Validate(tt.token); err == nil {
				t.Error("expected rejection")
			}
		})
	}
}

func TestEmptySecretRejectsEverything(t *testing.T) {
	v := NewJWTValidator("")
	token := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})

	if _, err := v.Validate(token); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}
