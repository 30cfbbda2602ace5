// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package admission decides, per request, whether traffic may reach the API.

# Pipeline

  - Bypass: infrastructure paths and non-enforcing environments skip the gate.
  - Classify: automation (bot) and attack-shaped (shield) requests are refused.
  - Throttle: a sliding-window budget keyed by role tier and client IP.

The outcome is a [Decision]. Classification denials never consume a rate slot,
and any internal error is surfaced as an error so the middleware can fail closed.
*/
package admission

import "time"

// # Decision

// Reason identifies why a request was denied.
type Reason string

const (
	ReasonBot       Reason = "bot"
	ReasonShield    Reason = "shield"
	ReasonRateLimit Reason = "rate_limit"
)

// Decision is either allowed or denied with exactly one [Reason].
//
// The zero value is not a valid decision; use [Allow] or the deny constructors.
type Decision struct {
	allowed    bool
	reason     Reason
	tier       Tier
	retryAfter time.Duration
}

// Allow returns the allowing decision.
func Allow() Decision {
	return Decision{allowed: true}
}

// DenyBot returns a decision refusing automated traffic.
func DenyBot() Decision {
	return Decision{reason: ReasonBot}
}

// DenyShield returns a decision refusing an attack-shaped request.
func DenyShield() Decision {
	return Decision{reason: ReasonShield}
}

// DenyRateLimit returns a decision refusing a caller that exhausted tier.
func DenyRateLimit(tier Tier, retryAfter time.Duration) Decision {
	return Decision{reason: ReasonRateLimit, tier: tier, retryAfter: retryAfter}
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.allowed }

// Reason is empty for allowed decisions.
func (d Decision) Reason() Reason { return d.reason }

// Tier is only set for rate-limit denials.
func (d Decision) Tier() Tier { return d.tier }

// RetryAfter is how long until the rate-limited caller regains a slot.
func (d Decision) RetryAfter() time.Duration { return d.retryAfter }
