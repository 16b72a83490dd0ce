package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/cors"

	"github.com/erazemk/webventory/internal/insights"
	"github.com/erazemk/webventory/internal/metrics"
)

// Options are the dependencies of the API router.
type Options struct {
	DB         *sql.DB
	JWTSecret  string
	SessionTTL time.Duration
	Insights   *insights.Service
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// CORSOrigins enables CORS for the listed origins; empty disables it.
	CORSOrigins []string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{
		DB:         opts.DB,
		JWTSecret:  opts.JWTSecret,
		SessionTTL: opts.SessionTTL,
		Insights:   opts.Insights,
	}
	itemsHandler := &ItemsHandler{DB: opts.DB, Insights: opts.Insights, Metrics: opts.Metrics}
	visibilityHandler := &VisibilityHandler{DB: opts.DB}

	authMW := AuthMiddleware(opts.JWTSecret, opts.DB)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Items, limited to those visible to the caller.
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("DELETE /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Delete)))
	mux.Handle("GET /api/items/{id}/history", authMW(http.HandlerFunc(itemsHandler.GetHistory)))
	mux.Handle("POST /api/items/{id}/adjust", authMW(http.HandlerFunc(itemsHandler.Adjust)))

	// Visibility.
	mux.Handle("GET /api/items/{id}/visibility", authMW(http.HandlerFunc(visibilityHandler.Get)))
	mux.Handle("PUT /api/items/{id}/visibility", authMW(http.HandlerFunc(visibilityHandler.Update)))

	if len(opts.CORSOrigins) == 0 {
		return mux
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})(mux)
}
