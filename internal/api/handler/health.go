// Package handler holds the ops HTTP handlers. The engine has no public job
// intake surface; these endpoints exist for deployment probes and operators.
package handler

import (
	"context"
	"net/http"

	"github.com/obikwelu/resulthawk/internal/api/response"
	"github.com/obikwelu/resulthawk/pkg/models"
)

// Pinger reports backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health checks the database and cache and reports per-dependency health.
// Any failing dependency turns the response into a 503 so load balancers
// stop routing to a degraded instance.
func Health(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type depHealth struct {
			Database string `json:"database"`
			Cache    string `json:"cache"`
		}
		health := depHealth{Database: "ok", Cache: "ok"}
		healthy := true

		if err := db.Ping(r.Context()); err != nil {
			health.Database = err.Error()
			healthy = false
		}
		if err := cache.Ping(r.Context()); err != nil {
			health.Cache = err.Error()
			healthy = false
		}

		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED", "a dependency is unavailable")
			return
		}
		response.JSON(w, health)
	}
}

// StatusReporter exposes the engine's point-in-time state.
type StatusReporter interface {
	Status(ctx context.Context) models.EngineStatus
}

// Status reports queue depth, in-flight jobs, and browser pool occupancy.
func Status(engine StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, engine.Status(r.Context()))
	}
}
