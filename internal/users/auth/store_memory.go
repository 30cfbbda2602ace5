// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/taibuivan/authgate/internal/platform/dberr"
)

// MemoryAccountRepository is a process-local [AccountRepository] used in
// development runs without DATABASE_URL and in tests.
type MemoryAccountRepository struct {
	mu      sync.RWMutex
	byEmail map[string]Account
}

// NewMemoryAccountRepository returns an empty in-memory store.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{byEmail: make(map[string]Account)}
}

// FindByEmail returns a copy of the stored account.
func (repository *MemoryAccountRepository) FindByEmail(_ context.Context, email string) (*Account, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	account, ok := repository.byEmail[email]
	if !ok {
		return nil, dberr.ErrNotFound
	}
	return &account, nil
}

// Create stores the account unless the email is taken. The check and the
// write happen under one lock, mirroring a unique index.
func (repository *MemoryAccountRepository) Create(_ context.Context, account *Account) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	if _, exists := repository.byEmail[account.Email]; exists {
		return dberr.ErrConflict
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	repository.byEmail[account.Email] = *account
	return nil
}

// Len returns the number of stored accounts.
func (repository *MemoryAccountRepository) Len() int {
	repository.mu.RLock()
	defer repository.mu.RUnlock()
	return len(repository.byEmail)
}
