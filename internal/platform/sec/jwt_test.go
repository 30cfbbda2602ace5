// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authgate/internal/platform/sec"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func newCodec(t *testing.T, clock *fakeClock) *sec.TokenCodec {
	t.Helper()
	codec, err := sec.NewTokenCodec(testSecret, "authgate-test", sec.WithClock(clock.Now))
	require.NoError(t, err)
	return codec
}

var ann = sec.SessionIdentity{AccountID: "acc-1", Email: "ann@x.com", Role: sec.RoleUser}

/*
TestTokenCodec_RoundTrip verifies verify(sign(claims)) returns the input identity
and sets a fixed one-day expiry.
*/
func TestTokenCodec_RoundTrip(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	codec := newCodec(t, clock)

	token, err := codec.Sign(ann)
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, ann, claims.Identity())
	assert.Equal(t, clock.current.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, sec.SessionTTL, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

/*
TestTokenCodec_Expired verifies tokens are rejected once the horizon has passed.
*/
func TestTokenCodec_Expired(t *testing.T) {
	clock := &fakeClock{current: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	codec := newCodec(t, clock)

	token, err := codec.Sign(ann)
	require.NoError(t, err)

	clock.current = clock.current.Add(sec.SessionTTL + time.Second)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, sec.ErrInvalidToken)
}

/*
TestTokenCodec_Tampered verifies that altering a single character of the
payload or signature invalidates the token.
*/
func TestTokenCodec_Tampered(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	codec := newCodec(t, clock)

	token, err := codec.Sign(ann)
	require.NoError(t, err)

	segments := strings.Split(token, ".")
	require.Len(t, segments, 3)

	tests := []struct {
		name  string
		index int
	}{
		{"payload_first_char", len(segments[0]) + 1},
		{"signature_middle_char", len(segments[0]) + len(segments[1]) + 2 + len(segments[2])/2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := []byte(token)
			if mutated[tt.index] == 'A' {
				mutated[tt.index] = 'B'
			} else {
				mutated[tt.index] = 'A'
			}

			_, err := codec.Verify(string(mutated))
			assert.ErrorIs(t, err, sec.ErrInvalidToken)
		})
	}
}

/*
TestTokenCodec_Rejects covers malformed input, foreign keys and the none algorithm.
*/
func TestTokenCodec_Rejects(t *testing.T) {
	clock := &fakeClock{current: time.Now()}
	codec := newCodec(t, clock)

	foreign, err := sec.NewTokenCodec([]byte("another-secret-another-secret-xx"), "authgate-test")
	require.NoError(t, err)
	foreignToken, err := foreign.Sign(ann)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"uid": "acc-1",
		"iss": "authgate-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "not.a.token",
		"foreign":   foreignToken,
		"alg_none":  unsigned,
		"two_parts": "abc.def",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Verify(token)
			assert.ErrorIs(t, err, sec.ErrInvalidToken)
		})
	}
}

/*
TestTokenCodec_EmptySecret verifies construction refuses an empty key.
*/
func TestTokenCodec_EmptySecret(t *testing.T) {
	_, err := sec.NewTokenCodec(nil, "authgate")
	assert.Error(t, err)

	secret, err := sec.RandomSecret(32)
	require.NoError(t, err)
	assert.Len(t, secret, 32)
}
