// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authgate/internal/platform/apperr"
)

/*
TestAppError_IsMatchesByCode verifies that errors.Is compares codes, not pointers.
*/
func TestAppError_IsMatchesByCode(t *testing.T) {
	sentinel := apperr.NotFound("Account")
	other := apperr.NotFound("Session")

	wrapped := fmt.Errorf("store: %w", other)

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, apperr.Conflict("dup")))
}

/*
TestAppError_InternalHidesCause verifies the client message never includes the cause.
*/
func TestAppError_InternalHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:5432: connection refused")
	err := apperr.Internal(cause)

	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.NotContains(t, err.Error(), "10.0.0.1")
	assert.ErrorIs(t, err, cause)
}

/*
TestAppError_WithDetailCopies verifies WithDetail does not mutate the receiver.
*/
func TestAppError_WithDetailCopies(t *testing.T) {
	base := apperr.Forbidden("Forbidden")
	detailed := base.WithDetail("Request blocked by shield")

	assert.Empty(t, base.Detail)
	assert.Equal(t, "Request blocked by shield", detailed.Detail)
	assert.True(t, errors.Is(detailed, base))

	extracted := apperr.As(fmt.Errorf("wrap: %w", detailed))
	require.NotNil(t, extracted)
	assert.Equal(t, apperr.CodeForbidden, extracted.Code)
}
