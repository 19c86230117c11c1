package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Probes and metrics
	mux.HandleFunc("/healthz", s.app.APIHandler.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{}))

	// API routes - Links
	mux.HandleFunc("/api/links/process", s.app.LinksHandler.ProcessHandler) // POST
	mux.HandleFunc("/api/links/convert", s.app.LinksHandler.ConvertHandler) // POST

	// API routes - Offers
	mux.HandleFunc("/api/offers", s.handleOffersRoute)  // GET (pending), POST (submit message)
	mux.HandleFunc("/api/offers/", s.handleOfferRoutes) // POST /{id}/approve, /{id}/reject

	// API routes - Runtime settings
	mux.HandleFunc("/api/settings", s.app.SettingsHandler.ListHandler) // GET
	mux.HandleFunc("/api/settings/", s.handleSettingRoutes)            // GET/PUT /{key}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleOffersRoute routes /api/offers requests (list pending and submit)
func (s *Server) handleOffersRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  s.app.OffersHandler.ListPendingHandler,
		"POST": s.app.OffersHandler.SubmitHandler,
	})
}

// handleOfferRoutes routes /api/offers/{id}/{action} requests
func (s *Server) handleOfferRoutes(w http.ResponseWriter, r *http.Request) {
	matched := RouteByPathSuffix(w, r, "/api/offers/", []PathSuffixRouter{
		{Suffix: "/approve", Handler: s.app.OffersHandler.ApproveHandler},
		{Suffix: "/reject", Handler: s.app.OffersHandler.RejectHandler},
	})
	if !matched {
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleSettingRoutes routes /api/settings/{key} requests
func (s *Server) handleSettingRoutes(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET": s.app.SettingsHandler.GetHandler,
		"PUT": s.app.SettingsHandler.UpdateHandler,
	})
}
