package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"llm-playground/internal/handlers"
	"llm-playground/internal/metrics"
	"llm-playground/internal/middleware"
)

// Handlers groups the route handlers. Configs may be nil when no
// credential store is configured.
type Handlers struct {
	Playground *handlers.PlaygroundHandler
	Configs    *handlers.ConfigsHandler
}

type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration // applied to non-streaming routes only
	MaxBodyBytes   int64
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h Handlers, opts Options) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 512 * 1024
	}

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id", "X-Stream-ID"},
		MaxAge:         600,
	}))
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	r.Route("/v1", func(r chi.Router) {
		// streams are bounded by the upstream stream timeout instead
		r.Post("/playground/{provider}", h.Playground.Call)

		if h.Configs != nil {
			r.With(middleware.Timeout(opts.RequestTimeout)).Route("/configs", func(r chi.Router) {
				r.Delete("/", h.Configs.Clear)
				r.Put("/{key}", h.Configs.Put)
				r.Get("/{key}", h.Configs.Get)
				r.Delete("/{key}", h.Configs.Delete)
			})
		}
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
