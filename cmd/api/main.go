package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/oneman/oneman-backend/api/routes"
	"github.com/oneman/oneman-backend/internal/groups"
	"github.com/oneman/oneman-backend/internal/materials"
	"github.com/oneman/oneman-backend/internal/messages"
	"github.com/oneman/oneman-backend/internal/users"
	"github.com/oneman/oneman-backend/pkg/cloudinary"
	"github.com/oneman/oneman-backend/pkg/config"
	"github.com/oneman/oneman-backend/pkg/db"
	"github.com/oneman/oneman-backend/pkg/instance"
	"github.com/oneman/oneman-backend/pkg/logger"
	"github.com/oneman/oneman-backend/pkg/metrics"
	"github.com/oneman/oneman-backend/pkg/migrate"
	"github.com/oneman/oneman-backend/pkg/outbox"
	"github.com/oneman/oneman-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	if err := cfg.CheckAPIDependencies(); err != nil {
		return err
	}

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	var (
		redisClient *redis.Client
		broker      messages.Broker
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(bootCtx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		broker = redisClient
	} else {
		logg.Warn(bootCtx, "redis not configured: Idempotency-Key enforcement on material submits, rate limits and cross-instance streaming are off")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	conn := dbClient.DB()
	catalog := materials.DefaultCatalog()
	hub := messages.NewHub(broker, logg)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	groupRepo := groups.NewRepository(conn)
	userRepo := users.NewRepository(conn)

	messageService, err := messages.NewService(messages.ServiceParams{
		Repo:   messages.NewRepository(conn),
		Groups: groupRepo,
		Tx:     dbClient,
		Outbox: outboxService,
		Hub:    hub,
		Logger: logg,
	})
	if err != nil {
		return err
	}

	groupService, err := groups.NewService(groups.ServiceParams{
		Repo:     groupRepo,
		Users:    userRepo,
		Tx:       dbClient,
		Messages: messageService,
		Outbox:   outboxService,
		Logger:   logg,
		Catalog:  &catalog,
	})
	if err != nil {
		return err
	}

	materialService, err := materials.NewService(materials.ServiceParams{
		Repo:               materials.NewRepository(conn),
		Groups:             groupRepo,
		Tx:                 dbClient,
		Messages:           messageService,
		Outbox:             outboxService,
		Metrics:            metrics.NewOperationMetrics(registry, "ledger"),
		Logger:             logg,
		MaxConflictRetries: cfg.Ledger.MaxConflictRetries,
		Catalog:            &catalog,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceParams{
		Repo:   userRepo,
		Logger: logg,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"instance":    instance.GetID("api-0"),
		"serviceKind": "api",
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Metrics:   registry,
			Groups:    groupService,
			Materials: materialService,
			Messages:  messageService,
			Users:     userService,
			Catalog:   catalog,
			Signer:    cloudinary.NewSigner(cfg.Cloudinary),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
