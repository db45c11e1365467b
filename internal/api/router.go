package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/obikwelu/resulthawk/internal/api/middleware"
)

// Dependencies holds the handlers wired into the router.
type Dependencies struct {
	HealthHandler http.HandlerFunc
	StatusHandler http.HandlerFunc
}

// NewRouter builds the ops router with the middleware stack.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/healthz", deps.HealthHandler)
	r.Get("/status", deps.StatusHandler)

	return r
}
