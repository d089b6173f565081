package cmd

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/plantops/equipment-health/internal/cache"
	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/db"
	"github.com/plantops/equipment-health/internal/events"
	"github.com/plantops/equipment-health/internal/service"
	"go.uber.org/zap"
)

// app - 저장소, 이벤트 버스, 서비스 묶음
type app struct {
	cfg    config.Config
	logger *zap.Logger

	store db.Store
	pg    *db.Postgres
	redis *redis.Client
	cache cache.Store
	bus   *events.Bus

	assets     *service.AssetService
	ledger     *service.LedgerService
	workOrders *service.WorkOrderService
	alerts     *service.AlertService
	aggregator *service.HealthAggregator

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.bus = events.NewBus(a.store, logger, cfg.Events)

	policy := service.NewHealthPolicy(cfg.Health)
	a.assets = service.NewAssetService(a.store, a.bus, logger, policy)
	a.ledger = service.NewLedgerService(a.store, a.bus, logger)
	a.workOrders = service.NewWorkOrderService(a.store, a.store, a.ledger, a.bus, logger)
	a.alerts = service.NewAlertService(a.store, a.store, a.workOrders, a.bus, logger)
	a.aggregator = service.NewHealthAggregator(a.store, a.store, a.store, a.store, a.bus, logger, policy, cfg.Health.AggregationInterval)
	if cfg.Health.ThresholdRule {
		a.assets.AddRule(service.NewThresholdRule(a.alerts, cfg.Health.WatchAlerts))
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if !a.cfg.Postgres.Enabled() {
		a.logger.Warn("postgres is not configured, using in-memory store")
		a.store = db.NewMemory()
		return nil
	}
	pool, err := db.NewPostgresPool(ctx, a.cfg.Postgres)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)
	a.pg = db.NewPostgres(pool)
	if err := a.pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	a.store = a.pg
	a.logger.Info("connected to postgres")
	return nil
}

func (a *app) openCache(ctx context.Context) error {
	if a.cfg.Redis.Addr == "" {
		a.cache = cache.NewMemory()
		return nil
	}
	client, err := cache.NewRedisClient(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	a.redis = client
	a.cache = cache.NewRedis(client, serviceName+":")
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.logger.Info("connected to redis", zap.String("addr", a.cfg.Redis.Addr))
	return nil
}

// Close - 이벤트 버스를 먼저 비운 뒤(구독자 sink와 store가 살아 있는 동안) 나머지를 역순으로 정리
func (a *app) Close() {
	if a.bus != nil {
		a.bus.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
