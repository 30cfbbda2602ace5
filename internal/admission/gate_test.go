// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admission_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authgate/internal/admission"
	"github.com/taibuivan/authgate/internal/platform/config"
	"github.com/taibuivan/authgate/internal/platform/constants"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
	"github.com/taibuivan/authgate/internal/platform/middleware"
	"github.com/taibuivan/authgate/internal/platform/sec"
)

type stubClassifier struct {
	reason admission.Reason
	err    error
}

func (s stubClassifier) Classify(*http.Request) (admission.Reason, error) {
	return s.reason, s.err
}

type countingLimiter struct {
	inner admission.Limiter
	calls int
	err   error
}

func (c *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (admission.Result, error) {
	c.calls++
	if c.err != nil {
		return admission.Result{}, c.err
	}
	return c.inner.Allow(ctx, key, limit, window)
}

func testPolicy(t *testing.T) *admission.Policy {
	t.Helper()
	policy, err := admission.PolicyFromConfig(&config.Config{
		RateLimitWindow: time.Minute,
		RateLimitAdmin:  20,
		RateLimitUser:   10,
		RateLimitGuest:  5,
	})
	require.NoError(t, err)
	return policy
}

func newLimiter(t *testing.T) admission.Limiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return admission.NewMemoryLimiter(ctx, time.Minute)
}

func apiRequest(path, agent string, claims *sec.SessionClaims) *http.Request {
	request := httptest.NewRequest(http.MethodPost, path, nil)
	request.RemoteAddr = "203.0.113.5:40000"
	if agent != "" {
		request.Header.Set("User-Agent", agent)
	}
	if claims != nil {
		request = request.WithContext(ctxutil.WithAuthUser(request.Context(), claims))
	}
	return request
}

func TestPolicy_TierFallback(t *testing.T) {
	policy := testPolicy(t)

	assert.Equal(t, 20, policy.TierFor(sec.RoleAdmin).Max)
	assert.Equal(t, 10, policy.TierFor(sec.RoleUser).Max)
	assert.Equal(t, 5, policy.TierFor(sec.RoleGuest).Max)
	assert.Equal(t, sec.RoleGuest, policy.TierFor("superuser").Role)

	roles := make([]sec.Role, 0, 3)
	for _, tier := range policy.Tiers() {
		roles = append(roles, tier.Role)
	}
	assert.Equal(t, []sec.Role{sec.RoleAdmin, sec.RoleUser, sec.RoleGuest}, roles)

	_, err := admission.NewPolicy(admission.Tier{Role: sec.RoleUser, Max: 1, Interval: time.Second})
	assert.ErrorIs(t, err, admission.ErrNoGuestTier)
}

func TestGate_Precedence(t *testing.T) {
	cases := []struct {
		name   string
		reason admission.Reason
		want   admission.Reason
	}{
		{"bot", admission.ReasonBot, admission.ReasonBot},
		{"shield", admission.ReasonShield, admission.ReasonShield},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limiter := &countingLimiter{inner: newLimiter(t)}
			gate := admission.NewGate(testPolicy(t), stubClassifier{reason: tc.reason}, limiter)

			decision, err := gate.Evaluate(apiRequest("/api/auth/signin", browserAgent, nil))
			require.NoError(t, err)
			assert.False(t, decision.Allowed())
			assert.Equal(t, tc.want, decision.Reason())
			assert.Zero(t, limiter.calls, "classification denials must not spend budget")
		})
	}
}

func TestGate_GuestBudget(t *testing.T) {
	gate := admission.NewGate(testPolicy(t), admission.NewHeuristicClassifier(), newLimiter(t))

	for i := range 5 {
		decision, err := gate.Evaluate(apiRequest("/api/auth/signin", browserAgent, nil))
		require.NoError(t, err)
		assert.True(t, decision.Allowed(), "request %d", i+1)
	}

	decision, err := gate.Evaluate(apiRequest("/api/auth/signin", browserAgent, nil))
	require.NoError(t, err)
	assert.Equal(t, admission.ReasonRateLimit, decision.Reason())
	assert.Equal(t, "Guest", decision.Tier().Label)
	assert.Positive(t, decision.RetryAfter())
}

func TestGate_TiersAreSeparate(t *testing.T) {
	gate := admission.NewGate(testPolicy(t), admission.NewHeuristicClassifier(), newLimiter(t))
	user := &sec.SessionClaims{AccountID: "acc-1", Role: sec.RoleUser}

	for range 5 {
		_, err := gate.Evaluate(apiRequest("/api/auth/signin", browserAgent, nil))
		require.NoError(t, err)
	}

	for i := range 10 {
		decision, err := gate.Evaluate(apiRequest("/api/auth/me", browserAgent, user))
		require.NoError(t, err)
		assert.True(t, decision.Allowed(), "user request %d", i+1)
	}

	decision, err := gate.Evaluate(apiRequest("/api/auth/me", browserAgent, user))
	require.NoError(t, err)
	assert.Equal(t, admission.ReasonRateLimit, decision.Reason())
	assert.Equal(t, 10, decision.Tier().Max)
}

/*
TestGate_ForwardingHeadersDoNotResetBudget verifies an untrusted peer cannot
obtain a fresh window by rotating X-Real-IP or X-Forwarded-For.
*/
func TestGate_ForwardingHeadersDoNotResetBudget(t *testing.T) {
	gate := admission.NewGate(testPolicy(t), admission.NewHeuristicClassifier(), newLimiter(t))
	handler := middleware.ClientIP(nil)(gate.Middleware(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})))

	statuses := make([]int, 0, 6)
	for i := range 6 {
		request := apiRequest("/api/auth/signin", browserAgent, nil)
		request.Header.Set(constants.HeaderXRealIP, fmt.Sprintf("10.0.0.%d", i+1))
		request.Header.Set(constants.HeaderXForwardedFor, fmt.Sprintf("10.1.0.%d", i+1))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		statuses = append(statuses, recorder.Code)
	}

	assert.Equal(t, []int{
		http.StatusNoContent, http.StatusNoContent, http.StatusNoContent,
		http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests,
	}, statuses)
}

func TestGate_TrustedProxyKeysOnForwardedClient(t *testing.T) {
	trust, err := middleware.NewProxyTrust([]string{"203.0.113.0/24"})
	require.NoError(t, err)

	gate := admission.NewGate(testPolicy(t), admission.NewHeuristicClassifier(), newLimiter(t))
	handler := middleware.ClientIP(trust)(gate.Middleware(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})))

	send := func(client string) int {
		request := apiRequest("/api/auth/signin", browserAgent, nil)
		request.Header.Set(constants.HeaderXForwardedFor, client)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder.Code
	}

	for range 5 {
		require.Equal(t, http.StatusNoContent, send("198.51.100.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	assert.Equal(t, http.StatusNoContent, send("198.51.100.2"))
}

func TestGate_Bypass(t *testing.T) {
	limiter := &countingLimiter{inner: newLimiter(t)}
	gate := admission.NewGate(testPolicy(t), stubClassifier{reason: admission.ReasonBot}, limiter)

	for _, path := range constants.BypassPaths {
		decision, err := gate.Evaluate(apiRequest(path, "", nil))
		require.NoError(t, err)
		assert.True(t, decision.Allowed(), path)
	}

	disabled := admission.NewGate(testPolicy(t), stubClassifier{reason: admission.ReasonBot}, limiter, admission.WithEnforcement(false))
	decision, err := disabled.Evaluate(apiRequest("/api/auth/signin", "", nil))
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
	assert.Zero(t, limiter.calls)
}

func TestGate_ErrorsAreReturned(t *testing.T) {
	classifierFailure := admission.NewGate(testPolicy(t), stubClassifier{err: errors.New("classifier unreachable")}, newLimiter(t))
	_, err := classifierFailure.Evaluate(apiRequest("/api/auth/signin", browserAgent, nil))
	assert.Error(t, err)

	limiterFailure := admission.NewGate(testPolicy(t), admission.NewHeuristicClassifier(),
		&countingLimiter{err: errors.New("redis: connection refused")})
	_, err = limiterFailure.Evaluate(apiRequest("/api/auth/signin", browserAgent, nil))
	assert.Error(t, err)
}

// # Middleware

func serve(gate *admission.Gate, request *http.Request) *httptest.ResponseRecorder {
	handler := gate.Middleware(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func body(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	return decoded
}

func TestMiddleware_Bot(t *testing.T) {
	gate := admission.NewGate(testPolicy(t), admission.NewHeuristicClassifier(), newLimiter(t))

	recorder := serve(gate, apiRequest("/api/auth/signup", "curl/8.4.0", nil))
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	decoded := body(t, recorder)
	assert.Equal(t, "Forbidden", decoded["error"])
	assert.Equal(t, "Automated requests are not allowed", decoded["message"])
}

func TestMiddleware_Shield(t *testing.T) {
	gate := admission.NewGate(testPolicy(t), admission.NewHeuristicClassifier(), newLimiter(t))

	recorder := serve(gate, apiRequest("/.env", browserAgent, nil))
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, "Request blocked by shield", body(t, recorder)["message"])
}

func TestMiddleware_RateLimit(t *testing.T) {
	gate := admission.NewGate(testPolicy(t), admission.NewHeuristicClassifier(), newLimiter(t))

	for range 5 {
		assert.Equal(t, http.StatusNoContent, serve(gate, apiRequest("/api/auth/signin", browserAgent, nil)).Code)
	}

	recorder := serve(gate, apiRequest("/api/auth/signin", browserAgent, nil))
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)

	decoded := body(t, recorder)
	assert.Equal(t, "Too Many Requests", decoded["error"])
	assert.Equal(t, "Guest request limit exceeded (5 per minute). Slow down.", decoded["message"])

	retryAfter, err := strconv.Atoi(recorder.Header().Get(constants.HeaderRetryAfter))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)
}

func TestMiddleware_AdminMessage(t *testing.T) {
	gate := admission.NewGate(testPolicy(t), admission.NewHeuristicClassifier(), newLimiter(t))
	admin := &sec.SessionClaims{AccountID: "acc-0", Role: sec.RoleAdmin}

	var recorder *httptest.ResponseRecorder
	for range 21 {
		recorder = serve(gate, apiRequest("/api/auth/me", browserAgent, admin))
	}

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "Admin request limit exceeded (20 per minute). Slow down.", body(t, recorder)["message"])
}

func TestMiddleware_FailsClosed(t *testing.T) {
	gate := admission.NewGate(testPolicy(t), stubClassifier{err: errors.New("classifier unreachable")}, newLimiter(t))

	recorder := serve(gate, apiRequest("/api/auth/signin", browserAgent, nil))
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)

	decoded := body(t, recorder)
	assert.Equal(t, "Internal Server Error", decoded["error"])
	assert.Equal(t, "Something went wrong with security", decoded["message"])
	assert.NotContains(t, recorder.Body.String(), "unreachable")
}
