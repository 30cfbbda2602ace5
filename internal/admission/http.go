// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package admission

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/authgate/internal/platform/middleware"
	"github.com/taibuivan/authgate/internal/platform/respond"
	"github.com/taibuivan/authgate/internal/platform/sec"
)

type tierView struct {
	Role     sec.Role `json:"role"`
	Label    string   `json:"label"`
	Max      int      `json:"max"`
	Interval string   `json:"interval"`
}

type settingsView struct {
	Enforcing   bool       `json:"enforcing"`
	BypassPaths []string   `json:"bypass_paths"`
	Tiers       []tierView `json:"tiers"`
}

// Routes returns the admin-only admission endpoints.
//
// # Endpoints
//   - GET / : Reports whether the gate enforces, its bypass paths and tiers.
func (gate *Gate) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireRole(sec.RoleAdmin))
	router.Get("/", gate.settings)
	return router
}

func (gate *Gate) settings(writer http.ResponseWriter, _ *http.Request) {
	tiers := gate.policy.Tiers()
	views := make([]tierView, 0, len(tiers))
	for _, tier := range tiers {
		views = append(views, tierView{
			Role:     tier.Role,
			Label:    tier.Label,
			Max:      tier.Max,
			Interval: tier.Per(),
		})
	}

	respond.OK(writer, settingsView{
		Enforcing:   gate.enforce,
		BypassPaths: gate.bypassPaths,
		Tiers:       views,
	})
}
