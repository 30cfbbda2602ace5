// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/taibuivan/authgate/internal/platform/apperr"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
	"github.com/taibuivan/authgate/internal/platform/respond"
	"github.com/taibuivan/authgate/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify tokens in middleware.
type TokenVerifier interface {
	Verify(token string) (*sec.SessionClaims, error)
}

// SessionSource yields the raw session token carried by a request.
type SessionSource interface {
	Get(request *http.Request) (string, bool)
}

// Authenticate resolves the session cookie into claims.
//
// # Flow
//  1. No cookie: the request proceeds as anonymous (guest).
//  2. Cookie present but invalid or expired: also anonymous; the cause is
//     only logged at debug level.
//  3. Valid token: [*sec.SessionClaims] is injected into the context.
//
// It never rejects a request; use [RequireAuth] or [RequireRole] for that.
func Authenticate(verifier TokenVerifier, source SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			token, found := source.Get(request)
			if !found {
				next.ServeHTTP(writer, request)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				ctxutil.GetLogger(request.Context()).DebugContext(request.Context(), "session_token_rejected",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(writer, request)
				return
			}

			recordIdentity(request.Context(), claims.AccountID)
			ctx := ctxutil.WithAuthUser(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetAuthUser(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests whose role is below the target. It implies
// [RequireAuth] so both need not be mounted.
func RequireRole(role sec.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := ctxutil.GetAuthUser(request.Context())
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			if !claims.Role.AtLeast(role) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
