// README: Entry point; loads config, wires services, starts HTTP, WebSocket and background jobs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"easyfuel/internal/config"
	httptransport "easyfuel/internal/http"
	"easyfuel/internal/infra"
	"easyfuel/internal/jobs"
	"easyfuel/internal/maps"
	"easyfuel/internal/modules/chat"
	"easyfuel/internal/modules/depot"
	"easyfuel/internal/modules/dispatch"
	"easyfuel/internal/modules/order"
	"easyfuel/internal/modules/pricing"
	"easyfuel/internal/realtime"
	"easyfuel/internal/store"
	"easyfuel/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("easyfuel-api exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	verifier, err := infra.NewVerifier(ctx, infra.VerifierOptions{
		Mode:              cfg.Auth.Mode,
		FirebaseProjectID: cfg.Auth.Firebase.ProjectID,
		CredentialsFile:   cfg.Auth.Firebase.CredentialsFile,
		JWTSecret:         cfg.Auth.JWT.Secret,
		JWTIssuer:         cfg.Auth.JWT.Issuer,
	})
	if err != nil {
		return err
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	st, rates, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := realtime.NewHub(logger)
	if cfg.Redis.RelayEnabled {
		relay := realtime.NewRedisRelay(redisClient, cfg.Redis.Channel, logger)
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx, hub); err != nil && ctx.Err() == nil {
				logger.Error("event relay stopped", "err", err)
			}
		}()
	}
	go hub.RunHeartbeat(ctx, cfg.Realtime.HeartbeatInterval, cfg.Realtime.HeartbeatTimeout)

	var distance pricing.Distancer
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			return fmt.Errorf("maps client: %w", err)
		}
		distance = routes
	}
	pricingSvc := pricing.NewService(rates, distance, pricing.Tariff{
		DeliveryBaseCents:  cfg.Pricing.DeliveryBaseCents,
		DeliveryPerKmCents: cfg.Pricing.DeliveryPerKmCents,
		ServiceBasisPoints: cfg.Pricing.ServiceBasisPoints,
	}, logger)

	driverPool := dispatch.NewPool(redisClient, cfg.Dispatch.RadiusKm, cfg.Dispatch.CandidateLimit)
	orderSvc := order.NewService(st, pricingSvc, hub, logger)
	engine := dispatch.NewEngine(st, driverPool, hub, dispatch.NewEventReporter(hub, logger), dispatch.Config{
		OfferTTL:   cfg.Dispatch.OfferTTL,
		MaxOffers:  cfg.Dispatch.MaxOffers,
		SweepBatch: cfg.Dispatch.SweepBatch,
	}, logger)
	defer engine.Stop()
	depotSvc := depot.NewService(st, hub, depot.Config{MaxPaymentAttempts: cfg.Depot.MaxPaymentAttempts}, logger)
	chatSvc := chat.NewService(st, hub, logger)

	// Offers that expired while the process was down are handled by the first
	// sweep; everything still live gets its timer back.
	if n, err := engine.Rearm(ctx); err != nil {
		return fmt.Errorf("rearm offer timers: %w", err)
	} else if n > 0 {
		logger.Info("re-armed pending offers", "count", n)
	}
	if _, err := engine.ExpireDue(ctx); err != nil {
		logger.Warn("startup offer sweep failed", "err", err)
	}

	jobManager := jobs.NewJobManager(engine, driverPool, jobs.Config{
		SweepSpec:        cfg.Dispatch.SweepSpec,
		PruneSpec:        cfg.Dispatch.PruneSpec,
		DriverStaleAfter: cfg.Dispatch.DriverStaleAfter,
	}, logger)
	if err := jobManager.StartAll(); err != nil {
		return err
	}
	defer jobManager.StopAll()

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Order:    orderSvc,
		Dispatch: engine,
		Depot:    depotSvc,
		Chat:     chatSvc,
		Drivers:  driverPool,
		WS:       realtime.NewWSServer(hub, orderSvc, cfg.Realtime.SessionBuffer),
		Verifier: verifier,
		Logger:   logger,
	})
	return httptransport.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout, logger).Run(ctx)
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Log.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.JSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// newStore returns the State Store, the fuel price source and a close func.
func newStore(ctx context.Context, cfg config.Config) (store.Store, pricing.RateSource, func(), error) {
	static := pricing.StaticRates(cfg.Pricing.FuelPrices)
	if cfg.Store.Kind == config.StoreMemory {
		return store.NewMemory(), static, func() {}, nil
	}
	pool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.DB.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return postgres.NewStore(pool), pricing.NewStore(pool, static), pool.Close, nil
}
