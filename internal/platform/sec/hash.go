// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrHashing is the only error the [Hasher] ever returns. The underlying cause
// is dropped on purpose so neither the input nor library internals can leak.
var ErrHashing = errors.New("sec: hashing error")

// MaxPasswordBytes is the longest secret bcrypt accepts.
const MaxPasswordBytes = 72

// Hasher hashes and verifies passwords with bcrypt at a fixed work factor.
type Hasher struct {
	cost int
}

// NewHasher returns a [Hasher] using cost, clamped to bcrypt's accepted range.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Cost returns the configured bcrypt work factor.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the salted bcrypt hash of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", ErrHashing
	}
	return string(hashedBytes), nil
}

// Compare reports whether plaintext matches hash. A mismatch is (false, nil);
// a malformed hash is (false, [ErrHashing]).
func (h *Hasher) Compare(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrHashing
	}
}
