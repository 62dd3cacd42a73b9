package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/eventboard/internal/cache"
	"github.com/dukerupert/eventboard/internal/config"
	"github.com/dukerupert/eventboard/internal/handler"
	"github.com/dukerupert/eventboard/internal/middleware"
	"github.com/dukerupert/eventboard/internal/render"
	"github.com/dukerupert/eventboard/internal/store"
	ws "github.com/dukerupert/eventboard/internal/websocket"
)

type Server struct {
	hub              *ws.Hub
	eventH           *handler.EventHandler
	venueH           *handler.VenueHandler
	healthH          *handler.HealthHandler
	rateLimiter      *middleware.RateLimiter
	admin            middleware.AdminCredentials
	createsPerMinute int
	originPatterns   []string
	logger           *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, pages cache.PageCache, logger *slog.Logger) (*Server, error) {
	loc := cfg.Location()
	reg, err := render.New(render.Site{Title: cfg.SiteTitle, BaseURL: cfg.BaseURL, Location: loc})
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	hub := ws.NewHub(logger.With("component", "websocket"))
	eventStore := store.NewEventStore(db)
	venueStore := store.NewVenueStore(db)

	return &Server{
		hub: hub,
		eventH: handler.NewEventHandler(eventStore, venueStore, reg, pages, hub, handler.EventOptions{
			Location:    loc,
			Blacklist:   cfg.BlacklistWords,
			SearchLimit: cfg.SearchLimit,
		}, logger.With("component", "events")),
		venueH:           handler.NewVenueHandler(venueStore, eventStore, reg, pages, loc, logger.With("component", "venues")),
		healthH:          handler.NewHealthHandler(db, hub, logger.With("component", "health")),
		rateLimiter:      middleware.NewRateLimiter(),
		admin:            middleware.AdminCredentials{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash},
		createsPerMinute: cfg.CreatesPerMinute,
		originPatterns:   cfg.AllowedOrigins,
		logger:           logger,
	}, nil
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/events", http.StatusFound)
	})
	mux.HandleFunc("GET /health", s.healthH.Check)

	// Listing, with /events.<format> feeds served through the root segment
	mux.HandleFunc("GET /{page}", s.eventH.Root)
	mux.HandleFunc("GET /events", s.eventH.Index)
	mux.HandleFunc("GET /events/search", s.eventH.Search)

	// Events
	mux.HandleFunc("GET /events/new", s.eventH.New)
	mux.Handle("POST /events", s.rateLimited(s.eventH.Create))
	mux.HandleFunc("GET /events/{id}", s.eventH.Show)
	mux.HandleFunc("GET /events/{id}/edit", s.eventH.Edit)
	mux.HandleFunc("POST /events/{id}", s.eventH.Update)
	mux.HandleFunc("POST /events/{id}/delete", s.eventH.Destroy)
	mux.HandleFunc("GET /events/{id}/clone", s.eventH.Clone)

	// Administration
	mux.Handle("GET /events/duplicates", middleware.RequireAdmin(http.HandlerFunc(s.eventH.Duplicates)))
	mux.Handle("POST /events/squash", middleware.RequireAdmin(http.HandlerFunc(s.eventH.Squash)))
	mux.Handle("POST /events/{id}/lock", middleware.RequireAdmin(http.HandlerFunc(s.eventH.Lock)))
	mux.Handle("POST /events/{id}/unlock", middleware.RequireAdmin(http.HandlerFunc(s.eventH.Unlock)))

	// Venues
	mux.HandleFunc("GET /venues/{id}", s.venueH.Show)
	mux.HandleFunc("GET /venues/{id}/edit", s.venueH.Edit)
	mux.HandleFunc("POST /venues/{id}", s.venueH.Update)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.originPatterns, s.logger.With("component", "websocket")))

	identified := middleware.Identify(s.admin)(mux)
	return middleware.RequestLogger(s.logger.With("component", "http"))(identified)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.ByIP, s.createsPerMinute, time.Minute)(h)
}
