// FlowEngine server: the control-plane process that dispatches device
// automation runs across atomic services and workflow graphs.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/netloom/flowengine/internal/api/rest"
	"github.com/netloom/flowengine/internal/config"
	"github.com/netloom/flowengine/internal/engine"
	"github.com/netloom/flowengine/internal/infrastructure/logger"
	"github.com/netloom/flowengine/internal/progress"
	"github.com/netloom/flowengine/internal/registry"
	"github.com/netloom/flowengine/internal/runcontroller"
	"github.com/netloom/flowengine/internal/runner"
	"github.com/netloom/flowengine/internal/scheduler"
	"github.com/netloom/flowengine/internal/statestore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting flowengine server", "port", cfg.Server.Port, "state_store_kind", cfg.StateStore.Kind)

	store, closeStore := buildStateStore(cfg, appLogger)
	defer closeStore()

	executors := runner.NewRegistry()
	executors.SetFallback(runner.ExecutorFunc(func(ctx context.Context, device string, payload map[string]any) (map[string]any, error) {
		return map[string]any{"device": device, "echoed": payload}, nil
	}))

	svcRunner := runner.New(executors, store, appLogger.Slog())
	svcRunner.MaxProcessesDefault = cfg.Runner.MaxProcessesDefault

	hub := progress.NewHub(appLogger.Slog())
	dispatcher := progress.NewDispatcher(progress.NewHubObserver(hub, nil))

	eng := engine.New(svcRunner, store, appLogger.Slog())
	eng.Progress = dispatcher

	deviceAccess := runcontroller.DeviceAccessFunc(func(_ context.Context, _ string, requested []string, _ []string) ([]string, error) {
		// RBAC/device inventory resolution is out of scope;
		// every run is granted exactly the devices it asked for.
		return requested, nil
	})
	controller := runcontroller.New(eng, svcRunner, store, deviceAccess, appLogger.Slog())

	services := registry.NewServiceRegistry()

	var schedClient *scheduler.Client
	if cfg.Scheduler.Address != "" {
		schedClient = scheduler.New(cfg.Scheduler.Address, cfg.Scheduler.Token, cfg.Scheduler.Timeout)
	}
	_ = schedClient // held for future trigger-registration wiring; best-effort by contract

	router := buildRouter(cfg, appLogger, controller, services, hub)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		appLogger.Info("shutdown signal received", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			srv.Close()
		}
	}
}

func buildStateStore(cfg *config.Config, log *logger.Logger) (statestore.Store, func()) {
	if cfg.StateStore.Kind == "shared" {
		store, err := statestore.NewRedisStore(statestore.RedisConfig{
			URL:      cfg.StateStore.Address,
			Password: cfg.StateStore.Password,
			PoolSize: cfg.StateStore.PoolSize,
		}, log.Slog())
		if err != nil {
			log.Error("failed to connect to shared state store, falling back to local", "error", err)
			return statestore.NewLocalStore(), func() {}
		}
		return store, func() { store.Close() }
	}
	return statestore.NewLocalStore(), func() {}
}

func buildRouter(cfg *config.Config, log *logger.Logger, controller *runcontroller.Controller, services *registry.ServiceRegistry, hub *progress.Hub) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(rest.NewRecoveryMiddleware(log).Recovery())
	router.Use(rest.NewLoggingMiddleware(log).RequestLogger())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws/progress"})))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"progress_clients": hub.ClientCount(), "registered_services": len(services.List())})
	})

	progressHandler := progress.NewHandler(hub)
	router.GET("/ws/progress", func(c *gin.Context) {
		progressHandler.ServeHTTP(c.Writer, c.Request)
	})

	runHandlers := rest.NewRunHandlers(controller, services, log)
	v1 := router.Group("/api/v1")
	{
		v1.POST("/runs", runHandlers.HandleStartRun)
		v1.GET("/runs/:runtime", runHandlers.HandleGetRun)
		v1.POST("/runs/:runtime/stop", runHandlers.HandleStopRun)
	}

	return router
}
