package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
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
	metricsHandler "github.com/jwalitptl/notification-ledger/internal/handler/prometheus"
	"github.com/jwalitptl/notification-ledger/internal/middleware"
	"github.com/jwalitptl/notification-ledger/internal/resource"
	"github.com/jwalitptl/notification-ledger/internal/storage"
	"github.com/jwalitptl/notification-ledger/internal/worker"
	"github.com/jwalitptl/notification-ledger/pkg/circuitbreaker"
	"github.com/jwalitptl/notification-ledger/pkg/logger"
	"github.com/jwalitptl/notification-ledger/pkg/metrics"
)

const metricsNamespace = "ledger"

func main() {
	configPath := flag.String("config", "", "path to config.yml")
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

	if cfg.Storage.Driver != config.StorageDriverPostgres {
		appLogger.Fatal(errors.New("worker needs shared storage"), "memory storage runs its dispatchers inside the API process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(metricsNamespace, "worker", registry)

	store, err := storage.Open(ctx, *cfg, appMetrics)
	if err != nil {
		appLogger.Fatal(err, "failed to open storage")
	}
	defer store.Close()

	deps := worker.Deps{
		Notifications: store.Notifications,
		Users:         store.Users,
		Authorizer:    authz.NewMembershipAuthorizer(store.Members, cfg.Visibility.CacheTTL),
		Resources:     resource.NewDefaultRegistry(store.WorkPackages),
		Mailer: email.New(cfg.SMTP, circuitbreaker.Settings{
			MaxFailures: cfg.Dispatch.BreakerMaxFailures,
			Timeout:     cfg.Dispatch.BreakerResetTimeout,
		}, appLogger),
		Composer: email.Composer{BaseURL: cfg.SMTP.BaseURL},
		Logger:   appLogger.WithFields(map[string]interface{}{"component": "dispatch"}),
		Metrics:  appMetrics,
	}

	srv := monitoringServer(cfg.Server.MetricsPort, store, registry)
	go func() {
		appLogger.Info("starting monitoring server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(err, "monitoring server failed")
		}
	}()

	workers := worker.StartAll(ctx, worker.NewRunners(deps, cfg.Dispatch, cfg.Retention))

	<-ctx.Done()
	appLogger.Info("shutting down workers...")
	workers.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "monitoring server forced to shutdown")
	}
	appLogger.Info("workers exited")
}

// monitoringServer exposes probes and /metrics for the worker process.
func monitoringServer(port int, db health.Pinger, registry *prometheus.Registry) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())

	health.NewHandler(db).RegisterRoutes(engine)
	engine.GET("/metrics", metricsHandler.New(metricsNamespace, registry).Handler())

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
}
