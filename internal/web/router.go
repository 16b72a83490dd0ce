package web

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/webventory/internal/insights"
	"github.com/erazemk/webventory/internal/metrics"
	webembed "github.com/erazemk/webventory/web"
)

// Options are the dependencies of the web router.
type Options struct {
	DB         *sql.DB
	JWTSecret  string
	SessionTTL time.Duration
	Insights   *insights.Service
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// NewRouter creates the web page router with all page routes registered.
func NewRouter(opts Options) (http.Handler, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		DB:         opts.DB,
		Templates:  templates,
		JWTSecret:  opts.JWTSecret,
		SessionTTL: opts.SessionTTL,
		Insights:   opts.Insights,
		Metrics:    opts.Metrics,
	}

	mux := http.NewServeMux()
	user := s.gate(requireUser)
	anon := s.gate(requireAnonymous)
	optional := s.gate(allowAny)

	// Static assets.
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(webembed.StaticFS()))))

	// Entry pages, only for visitors who are not logged in.
	mux.Handle("GET /{$}", anon(http.HandlerFunc(s.Home)))
	mux.Handle("GET /home", anon(http.HandlerFunc(s.Home)))
	mux.Handle("GET /login", anon(http.HandlerFunc(s.LoginPage)))
	mux.Handle("POST /login", anon(http.HandlerFunc(s.LoginSubmit)))
	mux.Handle("GET /signup", anon(http.HandlerFunc(s.SignupPage)))
	mux.Handle("POST /signup", anon(http.HandlerFunc(s.SignupSubmit)))

	mux.Handle("GET /logout", optional(http.HandlerFunc(s.Logout)))
	mux.Handle("POST /logout", optional(http.HandlerFunc(s.Logout)))

	// Authenticated routes.
	mux.Handle("GET /userHome", user(http.HandlerFunc(s.UserHome)))

	mux.Handle("GET /userInventory", user(http.HandlerFunc(s.InventoryPage)))
	mux.Handle("GET /userInventory/{$}", user(http.HandlerFunc(s.InventoryPage)))
	mux.Handle("POST /userInventory", user(http.HandlerFunc(s.InventoryCreateSubmit)))
	mux.Handle("POST /userInventory/{$}", user(http.HandlerFunc(s.InventoryCreateSubmit)))
	mux.Handle("GET /userInventory/{id}/{$}", user(http.HandlerFunc(s.InventoryPage)))
	mux.Handle("GET /userInventory/{id}/edit", user(http.HandlerFunc(s.InventoryEditPage)))
	mux.Handle("POST /userInventory/{id}/edit", user(http.HandlerFunc(s.InventoryEditSubmit)))
	mux.Handle("POST /userInventory/{id}/delete", user(http.HandlerFunc(s.InventoryDeleteSubmit)))
	mux.Handle("GET /userInventory/{id}/visibility", user(http.HandlerFunc(s.VisibilityPage)))
	mux.Handle("POST /userInventory/{id}/visibility", user(http.HandlerFunc(s.VisibilitySubmit)))

	mux.Handle("GET /userInsights", user(http.HandlerFunc(s.InsightsPage)))
	mux.Handle("GET /userInsights/{$}", user(http.HandlerFunc(s.InsightsPage)))
	mux.Handle("GET /userInsights/{id}/{$}", user(http.HandlerFunc(s.InsightsPage)))
	mux.Handle("GET /userInsights/{id}/chart/{file}", user(http.HandlerFunc(s.ChartImage)))

	mux.Handle("GET /userSettings", user(http.HandlerFunc(s.SettingsPage)))
	mux.Handle("POST /userSettings", user(http.HandlerFunc(s.SettingsSubmit)))

	return mux, nil
}
