package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"teamchat/api"
	"teamchat/internal/config"
	"teamchat/internal/domain"
	"teamchat/internal/handler"
	"teamchat/internal/messaging"
	"teamchat/internal/middleware"
	"teamchat/internal/observability"
	"teamchat/internal/registry"
	"teamchat/internal/repository/badgerstore"
	"teamchat/internal/repository/memory"
	"teamchat/internal/repository/postgres"
	"teamchat/internal/security"
	"teamchat/internal/service"
	"teamchat/internal/websocket"
)

// backend is the storage a server instance runs on
type backend struct {
	messages domain.MessageStore
	channels domain.ChannelRepository
	checks   map[string]handler.HealthCheck
	closer   io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	instanceID := uuid.NewString()
	slog.Info("starting chat server",
		slog.String("environment", cfg.Environment),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("instance_id", instanceID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if store.closer != nil {
		defer store.closer.Close()
	}

	var cache registry.ExistenceCache
	if cfg.RedisURL != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := config.NewRedisClient(redisCtx, cfg.RedisURL)
		redisCancel()
		if err != nil {
			slog.Error("failed to connect to redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer client.Close()

		redisCache := registry.NewRedisCache(client, "teamchat:channel:", cfg.ChannelCacheTTL)
		cache = redisCache
		store.checks["redis"] = handler.PingCheck(redisCache)
		slog.Info("channel existence cache enabled", slog.Duration("ttl", cfg.ChannelCacheTTL))
	}

	reg := registry.New(store.channels, cache)
	hub := websocket.NewHub(reg)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	var relay service.TaskRelay
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL, cfg.TaskExchange, instanceID)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		if err := messaging.NewTaskEventConsumer(rmq, hub).Start(ctx); err != nil {
			slog.Error("failed to start task change consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		relay = rmq
		store.checks["rabbitmq"] = handler.ConnectionCheck(rmq.IsClosed)
		slog.Info("task change relay started", slog.String("exchange", rmq.Exchange()))
	}

	chatService := service.NewChatService(store.messages, hub, relay, cfg.MaxPageSize)
	channelService := service.NewChannelService(store.channels, reg)

	var validator func(http.Handler) http.Handler
	if cfg.OpenAPIValidation {
		validator, err = middleware.OpenAPIValidator(middleware.OpenAPIValidatorConfig{
			Enabled:   true,
			Spec:      api.OpenAPISpec,
			SkipPaths: middleware.DefaultSkipPaths,
		})
		if err != nil {
			slog.Error("failed to load openapi spec", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Stop()

	wsHandler := handler.NewWebSocketHandler(hub, chatService, cfg.AllowedOrigins, websocket.ClientOptions{
		SendBuffer: cfg.ClientSendBuffer,
	})

	router := handler.NewRouter(handler.RouterConfig{
		Messages:       handler.NewMessageHandler(chatService, cfg.DefaultPageSize, cfg.MaxPageSize),
		Channels:       handler.NewChannelHandler(channelService),
		WebSocket:      wsHandler,
		Verifier:       security.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		AllowedOrigins: cfg.AllowedOrigins,
		Limiter:        limiter,
		Validator:      validator,
		ReadyChecks:    store.checks,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	hubCancel()

	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		slog.Warn("hub did not stop before the shutdown deadline")
	}

	slog.Info("server stopped gracefully")
}

// openBackend opens the configured message store and its channel repository
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
		defer connCancel()

		db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(connCtx, db); err != nil {
			db.Close()
			return nil, err
		}
		go observability.WatchDBStats(ctx, db, 15*time.Second)
		slog.Info("connected to postgresql")

		return &backend{
			messages: postgres.NewMessageRepository(db),
			channels: postgres.NewChannelRepository(db),
			checks:   map[string]handler.HealthCheck{"database": handler.DatabaseCheck(db)},
			closer:   db,
		}, nil

	case config.BackendBadger:
		store, err := badgerstore.Open(cfg.BadgerPath, slog.Default())
		if err != nil {
			return nil, err
		}
		slog.Info("opened badger store", slog.String("path", cfg.BadgerPath))

		return &backend{
			messages: store,
			channels: store.Channels(),
			checks:   map[string]handler.HealthCheck{"badger": handler.PingCheck(store)},
			closer:   store,
		}, nil

	case config.BackendMemory:
		store := memory.NewStore()
		slog.Warn("using in-memory store; messages are lost on restart")

		return &backend{
			messages: store,
			channels: store.Channels(),
			checks:   map[string]handler.HealthCheck{},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
