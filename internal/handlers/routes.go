package handlers

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *mux.Router, ah *AdminHandler) {
	r.HandleFunc("/healthz", HandleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/admin/clients/{client}/stats", ah.HandleStats).Methods("GET")
	r.HandleFunc("/admin/clients/{client}/cleanup", ah.HandleCleanup).Methods("POST")
	r.HandleFunc("/admin/clients/{client}/cache", ah.HandleClearCache).Methods("DELETE")
	r.HandleFunc("/admin/clients/{client}/ratelimit", ah.HandleRateLimitStatus).Methods("GET")
	r.HandleFunc("/admin/clients/{client}/ratelimit", ah.HandleRateLimitClear).Methods("DELETE")
	r.HandleFunc("/admin/clients/{client}/migrate", ah.HandleMigrate).Methods("POST")
}
