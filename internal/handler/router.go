package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"teamchat/internal/middleware"
	"teamchat/internal/observability"
)

// RouterConfig carries everything the HTTP surface is assembled from.
// Limiter and Validator are optional.
type RouterConfig struct {
	Messages       *MessageHandler
	Channels       *ChannelHandler
	WebSocket      *WebSocketHandler
	Verifier       middleware.IdentityVerifier
	AllowedOrigins []string
	Limiter        *middleware.RateLimiter
	Validator      func(http.Handler) http.Handler
	ReadyChecks    map[string]HealthCheck
}

// NewRouter builds the chi router for the REST, WebSocket and ops endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Metrics())

	r.Get("/health", Health)
	r.Get("/health/ready", Ready(cfg.ReadyChecks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Verifier))
		if cfg.Limiter != nil {
			r.Use(cfg.Limiter.Middleware())
		}
		if cfg.Validator != nil {
			r.Use(cfg.Validator)
		}

		r.Get("/channels", cfg.Channels.List)
		r.Post("/channels", cfg.Channels.Create)
		r.Get("/channels/{id}", cfg.Channels.Get)
		r.Put("/channels/{id}", cfg.Channels.Update)
		r.Delete("/channels/{id}", cfg.Channels.Delete)
		r.Get("/channels/{id}/messages", cfg.Messages.List)

		r.Post("/messages", cfg.Messages.Create)
		r.Put("/messages/{id}", cfg.Messages.Edit)
		r.Delete("/messages/{id}", cfg.Messages.Delete)
	})

	r.With(middleware.AuthWebSocket(cfg.Verifier)).Get("/ws", cfg.WebSocket.HandleConnection)

	return r
}

// requestContext copies chi's request id into the logging context
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
