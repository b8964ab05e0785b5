package web

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the full API router. Everything except /token, /metrics and
// the static UI requires a bearer token.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware(s.cfg.CORSOrigins))

	loginLimiter := newRateLimiter(5, time.Minute)
	r.Handle("/token", rateLimitMiddleware(loginLimiter)(http.HandlerFunc(s.handleToken))).Methods(http.MethodPost, http.MethodOptions)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(authMiddleware(s.auth))

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/cpu", s.handleCPU).Methods(http.MethodGet)
	api.HandleFunc("/ram", s.handleRAM).Methods(http.MethodGet)
	api.HandleFunc("/storage", s.handleStorage).Methods(http.MethodGet)
	api.HandleFunc("/gps", s.handleGPS).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)

	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleUpdateConfig).Methods(http.MethodPost)
	api.HandleFunc("/webhooks", s.handleGetWebhooks).Methods(http.MethodGet)
	api.HandleFunc("/webhooks", s.handleSetWebhooks).Methods(http.MethodPost)

	api.HandleFunc("/geofences", s.handleListGeofences).Methods(http.MethodGet)
	api.HandleFunc("/geofences", s.handleCreateGeofence).Methods(http.MethodPost)
	api.HandleFunc("/geofences/{name}", s.handleUpdateGeofence).Methods(http.MethodPut)
	api.HandleFunc("/geofences/{name}", s.handleDeleteGeofence).Methods(http.MethodDelete)

	api.HandleFunc("/export/aps", s.handleExportAPs).Methods(http.MethodGet)

	api.HandleFunc("/service/{name}", s.handleServiceStatus).Methods(http.MethodGet)
	api.HandleFunc("/service/{name}/{action}", s.handleServiceAction).Methods(http.MethodPost)

	api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)

	api.HandleFunc("/api/widgets", s.handleWidgets).Methods(http.MethodGet)
	api.HandleFunc("/dashboard-settings", s.handleGetDashboard).Methods(http.MethodGet)
	api.HandleFunc("/dashboard-settings", s.handleSetDashboard).Methods(http.MethodPost)

	api.HandleFunc("/ws/aps", s.handleWSAPs)
	api.HandleFunc("/ws/status", s.handleWSStatus)
	api.HandleFunc("/stream/ws/detections", s.handleWSDetections)

	api.HandleFunc("/sse/aps", s.handleSSEAPs).Methods(http.MethodGet)
	api.HandleFunc("/sse/status", s.handleSSEStatus).Methods(http.MethodGet)
	api.HandleFunc("/stream/sse/detections", s.handleSSEDetections).Methods(http.MethodGet)
	api.HandleFunc("/sse/history", s.handleSSEHistory).Methods(http.MethodGet)

	if s.cfg.WebUIDist != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.WebUIDist)))
	}
	return r
}
