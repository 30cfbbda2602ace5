// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/taibuivan/authgate/internal/platform/constants"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
)

// # Client Address

// ProxyTrust decides which peers may report the client address through
// X-Real-IP or X-Forwarded-For. A nil or empty ProxyTrust trusts nobody.
type ProxyTrust struct {
	prefixes []netip.Prefix
}

// NewProxyTrust parses entries as CIDR ranges or single addresses.
func NewProxyTrust(entries []string) (*ProxyTrust, error) {
	trust := &ProxyTrust{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("middleware: invalid trusted proxy %q: %w", entry, err)
			}
			trust.prefixes = append(trust.prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("middleware: invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		trust.prefixes = append(trust.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return trust, nil
}

// Trusted reports whether addr is a configured proxy.
func (trust *ProxyTrust) Trusted(addr netip.Addr) bool {
	if trust == nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trust.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

/*
Resolve returns the client address for request.

The TCP peer is authoritative. Forwarding headers are read only when the peer
is a trusted proxy; X-Forwarded-For is walked right to left and the first hop
that is not itself a trusted proxy wins.
*/
func (trust *ProxyTrust) Resolve(request *http.Request) string {
	peer := peerHost(request)

	peerAddr, err := netip.ParseAddr(peer)
	if err != nil || !trust.Trusted(peerAddr) {
		return peer
	}

	if forwarded := request.Header.Get(constants.HeaderXForwardedFor); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !trust.Trusted(hop) {
				return hop.Unmap().String()
			}
		}
	}

	if realIP, err := netip.ParseAddr(strings.TrimSpace(request.Header.Get(constants.HeaderXRealIP))); err == nil {
		return realIP.Unmap().String()
	}

	return peer
}

// ClientIP resolves the client address once per request and stores it in the
// context for [RealIP].
func ClientIP(trust *ProxyTrust) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			ctx := ctxutil.WithClientIP(request.Context(), trust.Resolve(request))
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RealIP returns the address resolved by [ClientIP], or the TCP peer when
// the middleware did not run. Forwarding headers are never read here.
func RealIP(request *http.Request) string {
	if ip := ctxutil.GetClientIP(request.Context()); ip != "" {
		return ip
	}
	return peerHost(request)
}

func peerHost(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}
