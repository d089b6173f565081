package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/plantops/equipment-health/internal/client"
	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/events"
	"github.com/plantops/equipment-health/internal/handler"
	"github.com/plantops/equipment-health/internal/logger"
	"github.com/plantops/equipment-health/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	dedupTTL        = 24 * time.Hour
	shutdownTimeout = 15 * time.Second
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", zap.Error(err))
		return err
	}
	defer a.Close()

	var authService *service.AuthService
	if cfg.Auth.Enabled {
		authService, err = service.NewAuthService(ctx, a.store, cfg.Auth)
		if err != nil {
			log.Error("failed to initialize auth service", zap.Error(err))
			return err
		}
		if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			log.Error("failed to ensure admin user", zap.Error(err))
			return err
		}
	} else {
		log.Warn("authentication is disabled, actor is taken from X-Actor header")
	}

	if err := a.subscribe(); err != nil {
		return err
	}
	a.bus.Start(ctx)

	if cfg.Log.Format == "console" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.RouterDeps{
		Assets:         a.assets,
		Alerts:         a.alerts,
		WorkOrders:     a.workOrders,
		Ledger:         a.ledger,
		Aggregator:     a.aggregator,
		History:        a.bus,
		Webhooks:       service.NewWebhookService(a.store),
		Auth:           authService,
		Idempotency:    service.NewIdempotencyGuard(a.cache, cfg.Idempotency.TTL, log),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         log,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.aggregator.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

// subscribe - 이벤트 버스 구독자 등록
func (a *app) subscribe() error {
	a.bus.Subscribe("health-aggregator",
		events.Dedup(a.cache, "health-aggregator", dedupTTL, a.aggregator.HandleEvent),
		service.TriggerEvents...)

	webhooks := service.NewWebhookDeliveryService(a.store, a.store, a.logger)
	a.bus.Subscribe("webhooks", events.Dedup(a.cache, "webhooks", dedupTTL, webhooks.Deliver))

	slack := client.NewSlackClient(a.cfg.Slack)
	if slack.IsConfigured() {
		a.bus.Subscribe("slack", events.Dedup(a.cache, "slack", dedupTTL, slack.HandleEvent), client.SlackEvents...)
	}

	if a.redis != nil {
		sink := client.NewRedisStreamSink(a.redis, a.cfg.Redis.StreamKey)
		a.bus.Subscribe("redis-stream", sink.HandleEvent)
	}

	if a.cfg.NATS.URL != "" {
		publisher, err := client.NewNATSPublisher(a.cfg.NATS, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = publisher.Close() })
		a.bus.Subscribe("nats", publisher.HandleEvent)
	}
	return nil
}
