// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives, session tokens and their
// cookie transport.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing, Cookie
// attributes) from the domain logic. It is injected into the account handlers
// and the authentication middleware through constructors.
package sec

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for every verification failure: bad signature,
// malformed input, wrong algorithm or expiry are deliberately indistinguishable.
var ErrInvalidToken = errors.New("sec: invalid session token")

// SessionTTL is the fixed lifetime of a session token.
const SessionTTL = 24 * time.Hour

// SessionClaims represents the payload embedded inside a session token.
type SessionClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	AccountID string `json:"uid"`
	Email     string `json:"eml"`
	Role      Role   `json:"rol"`
}

// SessionIdentity is the caller-supplied part of [SessionClaims].
type SessionIdentity struct {
	AccountID string
	Email     string
	Role      Role
}

// TokenCodec signs and verifies HS256 session tokens with a process-wide secret.
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption customizes a [TokenCodec].
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(codec *TokenCodec) {
		codec.now = now
	}
}

// NewTokenCodec creates a [TokenCodec]. The secret must not be empty.
func NewTokenCodec(secret []byte, issuer string, options ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("sec: signing secret must not be empty")
	}

	codec := &TokenCodec{
		secret: secret,
		issuer: issuer,
		ttl:    SessionTTL,
		now:    time.Now,
	}
	for _, option := range options {
		option(codec)
	}

	return codec, nil
}

// RandomSecret returns n bytes from crypto/rand, for non-production runs without JWT_SECRET.
func RandomSecret(n int) ([]byte, error) {
	secret := make([]byte, n)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("sec: failed to generate secret: %w", err)
	}
	return secret, nil
}

// TTL returns the lifetime of tokens produced by this codec.
func (codec *TokenCodec) TTL() time.Duration {
	return codec.ttl
}

// Sign creates a token for identity with iat = now and exp = now + TTL.
func (codec *TokenCodec) Sign(identity SessionIdentity) (string, error) {
	issuedAt := codec.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.AccountID,
			Issuer:    codec.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(codec.ttl)),
		},
		AccountID: identity.AccountID,
		Email:     identity.Email,
		Role:      identity.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(codec.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Verify checks the signature, issuer and expiry of tokenString.
func (codec *TokenCodec) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return codec.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(codec.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(codec.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Identity strips the registered claims.
func (claims *SessionClaims) Identity() SessionIdentity {
	return SessionIdentity{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Role:      claims.Role,
	}
}
