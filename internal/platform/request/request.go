// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package requestutil provides utilities for extracting data from HTTP requests.

It centralizes body decoding and identity lookups so handlers share the same
error handling.
*/
package requestutil

import (
	"encoding/json"
	"net/http"

	"github.com/taibuivan/authgate/internal/platform/apperr"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
	"github.com/taibuivan/authgate/internal/platform/sec"
	"github.com/taibuivan/authgate/internal/platform/validate"
)

// maxBodyBytes bounds JSON payloads accepted by the auth endpoints.
const maxBodyBytes = 1 << 16

/*
DecodeJSON reads the request body and decodes it into the target structure.

Returns validate.ErrInvalidJSON if decoding fails, otherwise nil.
*/
func DecodeJSON(writer http.ResponseWriter, request *http.Request, target interface{}) error {
	request.Body = http.MaxBytesReader(writer, request.Body, maxBodyBytes)
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
RequiredClaims ensures the request is authenticated and returns the session claims.

Returns apperr.Unauthorized if the request is not authenticated.
*/
func RequiredClaims(request *http.Request) (*sec.SessionClaims, error) {
	claims := ctxutil.GetAuthUser(request.Context())
	if claims == nil {
		return nil, apperr.Unauthorized("Authentication required")
	}
	return claims, nil
}
