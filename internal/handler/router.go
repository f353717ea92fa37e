package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"busjp/internal/middleware"
)

type RouterConfig struct {
	Query   *QueryHandler
	GTFS    *GTFSHandler
	WS      *WSHandler
	Health  *HealthHandler
	Stats   *StatsHandler
	Limiter *middleware.RateLimiter

	// GTFSDir is served under /gtfs/ when set
	GTFSDir        string
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag"},
		MaxAge:         300,
	}))

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)

	if cfg.GTFSDir != "" {
		r.Handle("/gtfs/*", http.StripPrefix("/gtfs/", http.FileServer(http.Dir(cfg.GTFSDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(cfg.Limiter.Middleware)
		}

		// the upgrade needs the raw writer, so no gzip here
		r.Get("/ws", cfg.WS.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(GzipMiddleware)

			r.Get("/stops", cfg.Query.ListStops)
			r.Get("/stops/{id}", cfg.GTFS.GetStop)
			r.Get("/routes", cfg.Query.ListRoutes)
			r.Get("/routes/{id}", cfg.GTFS.GetRoute)

			r.Get("/sync", cfg.GTFS.GetSync)
			r.Get("/sync/check", cfg.GTFS.CheckSync)
			r.Get("/map/config", cfg.GTFS.GetMapConfig)
			r.Get("/gtfs/stats", cfg.GTFS.GetStats)
			r.Get("/stats", cfg.Stats.GetStats)
		})
	})

	return r
}
