package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crawlerd/internal/controllers"
	"crawlerd/internal/providers"
	"crawlerd/internal/statistic"
	"crawlerd/internal/structures"
)

type App struct {
	WebServer *http.Server
}

// NewHandler assembles the full HTTP surface: the registered API routes with
// request metrics, plus /health and /metrics outside the instrumentation.
func NewHandler(conf *structures.Config, healthController *controllers.HealthController, router providers.RouterProviderInterface, metrics providers.MetricsProviderInterface) http.Handler {
	root := mux.NewRouter()
	root.HandleFunc("/health", healthController.Health).Methods(http.MethodGet)
	if conf.Metrics.Enabled {
		root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	api := router.Router(func(next http.Handler) http.Handler {
		return providers.MetricsMiddleware(metrics, next)
	})
	root.NotFoundHandler = api

	if len(conf.WebServer.AllowedOrigins) == 0 {
		return root
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(conf.WebServer.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "Content-Encoding", "X-API-Key"}),
	)
	return cors(root)
}

func NewApp(healthController *controllers.HealthController, scheduler statistic.SchedulerInterface, conf *structures.Config, logger providers.Logger, router providers.RouterProviderInterface, metrics providers.MetricsProviderInterface) (*App, error) {
	logger.Infof(providers.TypeApp, "Starting %s (storage=%s, rollup=%s, auth=%s)",
		conf.AppName, conf.Storage.Driver, conf.Storage.Rollup, conf.Auth.Source)
	err := scheduler.Restore()
	if err != nil {
		logger.Errorf(providers.TypeApp, "Restore error: %s", err)
	}

	app := &App{
		WebServer: &http.Server{
			Addr:         conf.WebServer.Host + ":" + strconv.Itoa(conf.WebServer.Port),
			Handler:      NewHandler(conf, healthController, router, metrics),
			ReadTimeout:  conf.WebServer.ReadTimeout,
			WriteTimeout: conf.WebServer.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}

	scheduler.Init()

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof(providers.TypeApp, "Listening HTTP clients on %s:%d", conf.WebServer.Host, conf.WebServer.Port)
		if err := app.WebServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Infof(providers.TypeApp, "Shutdown signal received")
	case err := <-serverErr:
		scheduler.Stop()
		return nil, fmt.Errorf("server error: %w", err)
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = app.WebServer.Shutdown(ctx); err != nil {
		return nil, err
	}
	err = scheduler.Persist()
	if err != nil {
		return nil, err
	}
	logger.Infof(providers.TypeApp, "gracefully stopped")
	return app, nil
}
