package main

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"civicBadgesAPI/handlers"
	"civicBadgesAPI/internal/config"
	"civicBadgesAPI/middleware"
)

type routerDeps struct {
	cfg           config.Config
	logger        *zap.Logger
	badgeHandler  *handlers.BadgeHandler
	eventHandler  *handlers.EventHandler
	userVerifier  middleware.TokenVerifier
	eventVerifier middleware.TokenVerifier
	limiter       *middleware.RateLimiter
	health        healthFunc
}

func newRouter(d routerDeps) http.Handler {
	r := mux.NewRouter()
	r.Use(d.limiter.Middleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(d.cfg.MetricsUser, d.cfg.MetricsPass)(promhttp.Handler()))

	debug := r.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.PprofSecurityMiddleware(d.cfg.PprofSecret))
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").HandlerFunc(pprof.Index)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := d.health(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	}).Methods("GET")

	events := r.PathPrefix("/api/v1/badges/events").Subrouter()
	events.Use(middleware.ServiceAuthMiddleware(d.eventVerifier, d.logger))
	events.HandleFunc("", d.eventHandler.PostEvents).Methods("POST")

	protected := r.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware(d.userVerifier, d.logger))

	protected.HandleFunc("/badges", d.badgeHandler.GetAllBadges).Methods("GET")
	protected.HandleFunc("/badges/my", d.badgeHandler.GetMyBadges).Methods("GET")
	protected.HandleFunc("/badges/stats", d.badgeHandler.GetStats).Methods("GET")
	protected.HandleFunc("/badges/progress", d.badgeHandler.GetProgress).Methods("GET")
	protected.HandleFunc("/badges/recent", d.badgeHandler.GetRecent).Methods("GET")
	protected.HandleFunc("/badges/check", d.badgeHandler.CheckBadges).Methods("POST")
	protected.HandleFunc("/badges/acknowledge", d.badgeHandler.AcknowledgeAll).Methods("PUT")
	protected.HandleFunc("/badges/{slug}/acknowledge", d.badgeHandler.AcknowledgeBadge).Methods("PUT")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorillaHandlers.AllowCredentials(),
	)
	return corsHandler(r)
}
