// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admission

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/taibuivan/authgate/internal/platform/constants"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
	"github.com/taibuivan/authgate/internal/platform/middleware"
	"github.com/taibuivan/authgate/internal/platform/sec"
)

// # Gate

// Gate combines classification and throttling into one [Decision].
type Gate struct {
	policy      *Policy
	classifier  Classifier
	limiter     Limiter
	enforce     bool
	bypassPaths []string
}

// Option configures a [Gate].
type Option func(*Gate)

// WithEnforcement turns the gate on or off. A disabled gate allows everything.
func WithEnforcement(enforce bool) Option {
	return func(gate *Gate) { gate.enforce = enforce }
}

// WithBypassPaths replaces the paths that are never classified or throttled.
func WithBypassPaths(paths ...string) Option {
	return func(gate *Gate) { gate.bypassPaths = paths }
}

// NewGate creates an enforcing gate that bypasses [constants.BypassPaths].
func NewGate(policy *Policy, classifier Classifier, limiter Limiter, options ...Option) *Gate {
	gate := &Gate{
		policy:      policy,
		classifier:  classifier,
		limiter:     limiter,
		enforce:     true,
		bypassPaths: constants.BypassPaths,
	}
	for _, option := range options {
		option(gate)
	}
	return gate
}

// Bypassed reports whether request skips admission entirely.
func (gate *Gate) Bypassed(request *http.Request) bool {
	return !gate.enforce || slices.Contains(gate.bypassPaths, request.URL.Path)
}

/*
Evaluate decides whether request may proceed.

The caller's role and client address come from the request context, as set
by the authentication and client-address middleware.

Precedence is bot, then shield, then rate limit. A request refused by
classification never reaches the limiter, so it does not spend budget.
*/
func (gate *Gate) Evaluate(request *http.Request) (Decision, error) {
	ctx := request.Context()
	if gate.Bypassed(request) {
		return Allow(), nil
	}

	reason, err := gate.classifier.Classify(request)
	if err != nil {
		return Decision{}, fmt.Errorf("admission_classify_failed: %w", err)
	}
	switch reason {
	case ReasonBot:
		return DenyBot(), nil
	case ReasonShield:
		return DenyShield(), nil
	case "":
	default:
		return Decision{}, fmt.Errorf("admission_classify_failed: unknown reason %q", reason)
	}

	tier := gate.policy.TierFor(ctxutil.RoleOf(ctx))
	result, err := gate.limiter.Allow(ctx, RateKey(tier.Role, middleware.RealIP(request)), tier.Max, tier.Interval)
	if err != nil {
		return Decision{}, fmt.Errorf("admission_limit_failed: %w", err)
	}
	if !result.Allowed {
		return DenyRateLimit(tier, result.RetryAfter), nil
	}

	return Allow(), nil
}

// RateKey is the limiter key for a tier and client IP.
func RateKey(role sec.Role, ip string) string {
	return string(role) + ":" + ip
}
