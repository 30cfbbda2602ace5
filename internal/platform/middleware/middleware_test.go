// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authgate/internal/platform/constants"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
	"github.com/taibuivan/authgate/internal/platform/middleware"
	"github.com/taibuivan/authgate/internal/platform/sec"
)

type stubVerifier struct {
	claims *sec.SessionClaims
}

func (s stubVerifier) Verify(token string) (*sec.SessionClaims, error) {
	if token != "good" {
		return nil, sec.ErrInvalidToken
	}
	return s.claims, nil
}

type devConfig struct{ development bool }

func (c devConfig) IsDevelopment() bool { return c.development }

var userClaims = &sec.SessionClaims{AccountID: "acc-1", Email: "ann@x.com", Role: sec.RoleUser}

func roleEcho() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(ctxutil.RoleOf(request.Context())))
	})
}

func authenticated(cookieValue string) *http.Request {
	request := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	if cookieValue != "" {
		request.AddCookie(&http.Cookie{Name: sec.SessionCookieName, Value: cookieValue})
	}
	return request
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	handler := middleware.RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, request *http.Request) {
		seen = ctxutil.GetRequestID(request.Context())
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, recorder.Header().Get(constants.HeaderXRequestID))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(constants.HeaderXRequestID, "client-id")
	handler.ServeHTTP(httptest.NewRecorder(), request)
	assert.Equal(t, "client-id", seen)
}

func TestAuthenticate_IsLenient(t *testing.T) {
	cookie := sec.NewSessionCookie(false, "strict", sec.SessionTTL)
	handler := middleware.Authenticate(stubVerifier{claims: userClaims}, cookie)(roleEcho())

	cases := map[string]string{
		"":        string(sec.RoleGuest),
		"garbage": string(sec.RoleGuest),
		"good":    string(sec.RoleUser),
	}
	for token, wantRole := range cases {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, authenticated(token))
		assert.Equal(t, http.StatusOK, recorder.Code, "token %q", token)
		assert.Equal(t, wantRole, recorder.Body.String(), "token %q", token)
	}
}

func TestStructuredLogger_RecordsAuthenticatedAccount(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buffer, nil))

	cookie := sec.NewSessionCookie(false, "strict", sec.SessionTTL)
	handler := middleware.StructuredLogger(logger)(
		middleware.Authenticate(stubVerifier{claims: userClaims}, cookie)(roleEcho()),
	)

	handler.ServeHTTP(httptest.NewRecorder(), authenticated("good"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))
	assert.Equal(t, "http_request_finished", entry["msg"])
	assert.Equal(t, "acc-1", entry["user_id"])
	assert.EqualValues(t, http.StatusOK, entry["status"])
}

func TestRequireRole(t *testing.T) {
	cookie := sec.NewSessionCookie(false, "strict", sec.SessionTTL)
	handler := middleware.Authenticate(stubVerifier{claims: userClaims}, cookie)(
		middleware.RequireRole(sec.RoleAdmin)(roleEcho()),
	)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authenticated(""))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, authenticated("good"))
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestRequireAuth(t *testing.T) {
	handler := middleware.RequireAuth(roleEcho())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request = request.WithContext(ctxutil.WithAuthUser(request.Context(), userClaims))
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestFloodGuard_ShedsPerIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guard := middleware.NewFloodGuard(ctx, 1, 2)
	handler := guard.Middleware(roleEcho())

	statuses := make([]int, 0, 3)
	for range 3 {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.RemoteAddr = "10.0.0.1:1234"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		statuses = append(statuses, recorder.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)

	assert.True(t, guard.Allow("10.0.0.2"))
}

func TestPanicRecovery(t *testing.T) {
	handler := middleware.PanicRecovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	recorder := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "boom")
}

func TestCORS(t *testing.T) {
	handler := middleware.CORS(devConfig{}, []string{"https://app.example.com"})(roleEcho())

	request := httptest.NewRequest(http.MethodOptions, "/api/auth/signin", nil)
	request.Header.Set(constants.HeaderOrigin, "https://app.example.com")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "https://app.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", recorder.Header().Get("Access-Control-Allow-Credentials"))

	request = httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set(constants.HeaderOrigin, "https://evil.example.com")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestRealIP_IgnoresHeadersWithoutResolver(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "192.0.2.10:5555"
	request.Header.Set(constants.HeaderXForwardedFor, "203.0.113.7")
	request.Header.Set(constants.HeaderXRealIP, "198.51.100.2")

	assert.Equal(t, "192.0.2.10", middleware.RealIP(request))
}

func resolved(t *testing.T, trust *middleware.ProxyTrust, remoteAddr string, headers map[string]string) string {
	t.Helper()

	var ip string
	handler := middleware.ClientIP(trust)(http.HandlerFunc(func(_ http.ResponseWriter, request *http.Request) {
		ip = middleware.RealIP(request)
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = remoteAddr
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	handler.ServeHTTP(httptest.NewRecorder(), request)
	return ip
}

func TestClientIP_TrustedProxies(t *testing.T) {
	trust, err := middleware.NewProxyTrust([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	cases := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"untrusted peer spoofing x-real-ip", "203.0.113.5:4000", map[string]string{constants.HeaderXRealIP: "10.9.9.9"}, "203.0.113.5"},
		{"untrusted peer spoofing forwarded-for", "203.0.113.5:4000", map[string]string{constants.HeaderXForwardedFor: "1.2.3.4"}, "203.0.113.5"},
		{"trusted proxy forwards client", "10.0.0.7:4000", map[string]string{constants.HeaderXForwardedFor: "198.51.100.2"}, "198.51.100.2"},
		{"forged leftmost hop is skipped", "10.0.0.7:4000", map[string]string{constants.HeaderXForwardedFor: "6.6.6.6, 198.51.100.2, 10.0.0.3"}, "198.51.100.2"},
		{"trusted single address with x-real-ip", "192.0.2.1:4000", map[string]string{constants.HeaderXRealIP: "198.51.100.9"}, "198.51.100.9"},
		{"trusted proxy without headers", "10.0.0.7:4000", nil, "10.0.0.7"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, resolved(t, trust, tc.remoteAddr, tc.headers), tc.name)
	}
}

func TestClientIP_NilTrustUsesPeer(t *testing.T) {
	got := resolved(t, nil, "203.0.113.5:4000", map[string]string{constants.HeaderXRealIP: "10.0.0.1"})
	assert.Equal(t, "203.0.113.5", got)
}

func TestNewProxyTrust_RejectsGarbage(t *testing.T) {
	_, err := middleware.NewProxyTrust([]string{"not-an-ip"})
	assert.Error(t, err)

	_, err = middleware.NewProxyTrust([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestFloodGuard_IgnoresSpoofedHeaders(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.ClientIP(nil)(middleware.NewFloodGuard(ctx, 1, 2).Middleware(roleEcho()))

	last := 0
	for i := range 3 {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.RemoteAddr = "203.0.113.5:4000"
		request.Header.Set(constants.HeaderXRealIP, fmt.Sprintf("10.0.0.%d", i+1))
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		last = recorder.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
