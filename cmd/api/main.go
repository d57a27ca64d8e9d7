package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/notification-ledger/internal/authz"
	"github.com/jwalitptl/notification-ledger/internal/config"
	"github.com/jwalitptl/notification-ledger/internal/email"
	"github.com/jwalitptl/notification-ledger/internal/handler/health"
	notificationHandler "github.com/jwalitptl/notification-ledger/internal/handler/notification"
	metricsHandler "github.com/jwalitptl/notification-ledger/internal/handler/prometheus"
	watcherHandler "github.com/jwalitptl/notification-ledger/internal/handler/watcher"
	"github.com/jwalitptl/notification-ledger/internal/middleware"
	"github.com/jwalitptl/notification-ledger/internal/repository/postgres"
	"github.com/jwalitptl/notification-ledger/internal/resource"
	"github.com/jwalitptl/notification-ledger/internal/router"
	notificationService "github.com/jwalitptl/notification-ledger/internal/service/notification"
	watcherService "github.com/jwalitptl/notification-ledger/internal/service/watcher"
	"github.com/jwalitptl/notification-ledger/internal/storage"
	"github.com/jwalitptl/notification-ledger/internal/worker"
	"github.com/jwalitptl/notification-ledger/pkg/auth"
	"github.com/jwalitptl/notification-ledger/pkg/circuitbreaker"
	"github.com/jwalitptl/notification-ledger/pkg/logger"
	"github.com/jwalitptl/notification-ledger/pkg/messaging"
	"github.com/jwalitptl/notification-ledger/pkg/messaging/redis"
	"github.com/jwalitptl/notification-ledger/pkg/metrics"
)

const metricsNamespace = "ledger"

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [serve|migrate]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = *appLogger.Zerolog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(metricsNamespace, "api", registry)

	store, err := storage.Open(ctx, *cfg, appMetrics)
	if err != nil {
		appLogger.Fatal(err, "failed to open storage", "driver", cfg.Storage.Driver)
	}
	defer store.Close()

	switch cmd := flag.Arg(0); cmd {
	case "", "serve":
		serve(ctx, cfg, store, registry, appMetrics, appLogger)
	case "migrate":
		migrate(ctx, store, appLogger)
	default:
		flag.Usage()
		appLogger.Fatal(fmt.Errorf("unknown command %q", cmd), "invalid arguments")
	}
}

func migrate(ctx context.Context, store *storage.Store, appLogger *logger.Logger) {
	if !store.Persistent() {
		appLogger.Info("memory storage needs no migrations")
		return
	}
	applied, err := postgres.Migrate(ctx, store.DB)
	if err != nil {
		appLogger.Fatal(err, "migration failed")
	}
	appLogger.Info("migrations applied", "count", applied)
}

func serve(
	ctx context.Context,
	cfg *config.Config,
	store *storage.Store,
	registry *prometheus.Registry,
	appMetrics *metrics.Metrics,
	appLogger *logger.Logger,
) {
	gin.SetMode(gin.ReleaseMode)

	broker := newBroker(cfg.Redis, appLogger)
	defer broker.Close()

	authorizer := authz.NewMembershipAuthorizer(store.Members, cfg.Visibility.CacheTTL)
	resources := resource.NewDefaultRegistry(store.WorkPackages)

	notificationSvc := notificationService.NewService(
		store.Notifications,
		store.Watchers,
		authorizer,
		resources,
		broker,
		appMetrics,
		appLogger.WithFields(map[string]interface{}{"component": "notifications"}),
		notificationService.Options{OrphanPolicy: cfg.Visibility.OrphanPolicy},
	)
	watcherSvc := watcherService.NewService(
		store.Watchers,
		store.Users,
		authorizer,
		resources,
		appLogger.WithFields(map[string]interface{}{"component": "watchers"}),
	)

	tokens := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry())

	r := router.NewRouter(
		middleware.NewAuthMiddleware(tokens),
		health.NewHandler(store),
		metricsHandler.New(metricsNamespace, registry),
		notificationHandler.NewHandler(notificationSvc),
		watcherHandler.NewHandler(watcherSvc),
		router.RouterConfig{Server: cfg.Server, RateLimit: cfg.RateLimit},
	)
	r.Setup()

	// The memory store is process local, so its dispatchers have to run here.
	if !store.Persistent() {
		deps := worker.Deps{
			Notifications: store.Notifications,
			Users:         store.Users,
			Authorizer:    authorizer,
			Resources:     resources,
			Mailer: email.New(cfg.SMTP, circuitbreaker.Settings{
				MaxFailures: cfg.Dispatch.BreakerMaxFailures,
				Timeout:     cfg.Dispatch.BreakerResetTimeout,
			}, appLogger),
			Composer: email.Composer{BaseURL: cfg.SMTP.BaseURL},
			Logger:   appLogger.WithFields(map[string]interface{}{"component": "dispatch"}),
			Metrics:  appMetrics,
		}
		workers := worker.StartAll(ctx, worker.NewRunners(deps, cfg.Dispatch, cfg.Retention))
		defer workers.Wait()
		appLogger.Warn("memory storage in use, dispatchers run in-process")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "server forced to shutdown")
	}
	appLogger.Info("server exited")
}

func newBroker(cfg config.RedisConfig, appLogger *logger.Logger) messaging.Broker {
	if !cfg.Enabled {
		return messaging.NopBroker{}
	}
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}, appLogger.Zerolog())
	if err != nil {
		appLogger.Fatal(err, "failed to connect to Redis")
	}
	return broker
}
