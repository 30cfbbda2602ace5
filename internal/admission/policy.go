// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admission

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/taibuivan/authgate/internal/platform/config"
	"github.com/taibuivan/authgate/internal/platform/sec"
)

// # Tiers

// Tier is the request budget granted to one role.
type Tier struct {
	Role     sec.Role
	Label    string
	Max      int
	Interval time.Duration
}

// Per renders the interval for client messages, e.g. "per minute".
func (t Tier) Per() string {
	switch t.Interval {
	case time.Second:
		return "per second"
	case time.Minute:
		return "per minute"
	case time.Hour:
		return "per hour"
	default:
		return "per " + t.Interval.String()
	}
}

// Policy maps roles to tiers. Roles without a tier get the guest tier.
type Policy struct {
	tiers map[sec.Role]Tier
}

// ErrNoGuestTier is returned when a policy has no fallback tier.
var ErrNoGuestTier = errors.New("admission: policy requires a guest tier")

// NewPolicy builds a policy from tiers. A guest tier is mandatory.
func NewPolicy(tiers ...Tier) (*Policy, error) {
	policy := &Policy{tiers: make(map[sec.Role]Tier, len(tiers))}
	for _, tier := range tiers {
		if tier.Max <= 0 || tier.Interval <= 0 {
			return nil, fmt.Errorf("admission: tier %q needs a positive budget and interval", tier.Role)
		}
		policy.tiers[tier.Role] = tier
	}

	if _, ok := policy.tiers[sec.RoleGuest]; !ok {
		return nil, ErrNoGuestTier
	}
	return policy, nil
}

// PolicyFromConfig builds the admin, user and guest tiers from configuration.
func PolicyFromConfig(cfg *config.Config) (*Policy, error) {
	return NewPolicy(
		Tier{Role: sec.RoleAdmin, Label: "Admin", Max: cfg.RateLimitAdmin, Interval: cfg.RateLimitWindow},
		Tier{Role: sec.RoleUser, Label: "User", Max: cfg.RateLimitUser, Interval: cfg.RateLimitWindow},
		Tier{Role: sec.RoleGuest, Label: "Guest", Max: cfg.RateLimitGuest, Interval: cfg.RateLimitWindow},
	)
}

// TierFor returns the tier for role, falling back to guest.
func (policy *Policy) TierFor(role sec.Role) Tier {
	if tier, ok := policy.tiers[role]; ok {
		return tier
	}
	return policy.tiers[sec.RoleGuest]
}

// Tiers lists every tier, most generous first.
func (policy *Policy) Tiers() []Tier {
	tiers := make([]Tier, 0, len(policy.tiers))
	for _, tier := range policy.tiers {
		tiers = append(tiers, tier)
	}
	slices.SortFunc(tiers, func(a, b Tier) int {
		if order := cmp.Compare(b.Max, a.Max); order != 0 {
			return order
		}
		return cmp.Compare(a.Role, b.Role)
	})
	return tiers
}
