package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/shopmate/internal/grocery"
	"github.com/dukerupert/shopmate/internal/handler"
	"github.com/dukerupert/shopmate/internal/metrics"
	"github.com/dukerupert/shopmate/internal/middleware"
	"github.com/dukerupert/shopmate/internal/store"
	ws "github.com/dukerupert/shopmate/internal/websocket"
)

type Config struct {
	// SubscribeRate is how many realtime subscriptions a client may open per
	// topic within SubscribeWindow. Zero disables the limit.
	SubscribeRate   int
	SubscribeWindow time.Duration
}

// Server is the reference remote store: the collection API plus realtime
// change fan-out.
type Server struct {
	db          *sql.DB
	collections *store.CollectionStore
	hub         *ws.Hub
	collectionH *handler.CollectionHandler
	rateLimiter *middleware.RateLimiter
	registry    *prometheus.Registry
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	if cfg.SubscribeWindow <= 0 {
		cfg.SubscribeWindow = time.Minute
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewServer(reg)

	hub := ws.NewHub(logger.With("component", "websocket"), m)
	collections := store.NewCollectionStore(db)

	return &Server{
		db:          db,
		collections: collections,
		hub:         hub,
		collectionH: handler.NewCollectionHandler(collections, hub, m, logger.With("component", "collections")),
		rateLimiter: middleware.NewRateLimiter(cfg.SubscribeRate, cfg.SubscribeWindow),
		registry:    reg,
		logger:      logger,
	}
}

// Seed adds the system categories missing from the database.
func (s *Server) Seed(ctx context.Context) error {
	n, err := store.SeedCategories(ctx, s.collections, grocery.SystemCategories())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("seeded system categories", "count", n)
	}
	return nil
}

// Hub returns the realtime hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Registerer exposes the server registry so callers can add collectors
// served on /metrics.
func (s *Server) Registerer() prometheus.Registerer {
	return s.registry
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /api/{collection}", s.collectionH.Insert)
	mux.HandleFunc("POST /api/{collection}/update", s.collectionH.Update)
	mux.HandleFunc("POST /api/{collection}/delete", s.collectionH.Delete)
	mux.HandleFunc("POST /api/{collection}/select", s.collectionH.Select)

	subscribe := middleware.RateLimit(s.rateLimiter, middleware.SubscribeKey)
	mux.Handle("GET /realtime", subscribe(ws.HandleWebSocket(s.hub)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "database unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":      status,
		"subscribers": s.hub.ClientCount(""),
	})
}
