// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "token"

// SessionCookie writes, reads and clears the session token cookie.
//
// The token is only ever transported here: HTTP-only, path "/", and with a
// max-age equal to the token lifetime.
type SessionCookie struct {
	secure   bool
	sameSite http.SameSite
	maxAge   time.Duration
}

// NewSessionCookie builds the transport. sameSite is "strict" or "lax"; any
// other value falls back to strict.
func NewSessionCookie(secure bool, sameSite string, maxAge time.Duration) *SessionCookie {
	mode := http.SameSiteStrictMode
	if strings.EqualFold(sameSite, "lax") {
		mode = http.SameSiteLaxMode
	}

	return &SessionCookie{
		secure:   secure,
		sameSite: mode,
		maxAge:   maxAge,
	}
}

// Set attaches token to the response.
func (transport *SessionCookie) Set(writer http.ResponseWriter, token string) {
	http.SetCookie(writer, transport.cookie(token, int(transport.maxAge/time.Second)))
}

// Get returns the token from the request, if any.
func (transport *SessionCookie) Get(request *http.Request) (string, bool) {
	cookie, err := request.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Clear overwrites the cookie with an empty, immediately expired value.
func (transport *SessionCookie) Clear(writer http.ResponseWriter) {
	http.SetCookie(writer, transport.cookie("", -1))
}

func (transport *SessionCookie) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   transport.secure,
		HttpOnly: true,
		SameSite: transport.sameSite,
	}
}
