// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admission

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/taibuivan/authgate/internal/platform/apperr"
	"github.com/taibuivan/authgate/internal/platform/constants"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
	"github.com/taibuivan/authgate/internal/platform/middleware"
	"github.com/taibuivan/authgate/internal/platform/respond"
)

// # Error Codes

const (
	CodeBotBlocked      = "BOT_BLOCKED"
	CodeShieldBlocked   = "SHIELD_BLOCKED"
	CodeAdmissionFailed = "ADMISSION_FAILED"
)

var (
	errBotBlocked    = apperr.New(http.StatusForbidden, CodeBotBlocked, "Forbidden").WithDetail("Automated requests are not allowed")
	errShieldBlocked = apperr.New(http.StatusForbidden, CodeShieldBlocked, "Forbidden").WithDetail("Request blocked by shield")
	errRateLimited   = apperr.New(http.StatusTooManyRequests, apperr.CodeRateLimited, "Too Many Requests")
	errAdmission     = apperr.New(http.StatusInternalServerError, CodeAdmissionFailed, "Internal Server Error").WithDetail("Something went wrong with security")
)

// Middleware applies the gate to every request. It must run after
// authentication so the caller's role is known.
func (gate *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx := request.Context()

		decision, err := gate.Evaluate(request)
		if err != nil {
			respond.Error(writer, request, errAdmission.WithCause(err))
			return
		}
		if decision.Allowed() {
			next.ServeHTTP(writer, request)
			return
		}

		role := ctxutil.RoleOf(ctx)
		ctxutil.GetLogger(ctx).WarnContext(ctx, "admission_denied",
			slog.String("ip", middleware.RealIP(request)),
			slog.String("user_agent", request.UserAgent()),
			slog.String("path", request.URL.Path),
			slog.String("role", string(role)),
			slog.String("reason", string(decision.Reason())),
		)

		respond.Error(writer, request, denial(writer, decision))
	})
}

// denial maps a denied decision to its client error, setting Retry-After
// for rate-limit denials.
func denial(writer http.ResponseWriter, decision Decision) *apperr.AppError {
	switch decision.Reason() {
	case ReasonBot:
		return errBotBlocked
	case ReasonShield:
		return errShieldBlocked
	default:
		tier := decision.Tier()
		writer.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(decision)))
		return errRateLimited.WithDetail(fmt.Sprintf("%s request limit exceeded (%d %s). Slow down.", tier.Label, tier.Max, tier.Per()))
	}
}

func retryAfterSeconds(decision Decision) int {
	seconds := int(math.Ceil(decision.RetryAfter().Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
