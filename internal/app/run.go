package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"sensorhub/internal/config"
	"sensorhub/internal/db"
	"sensorhub/internal/httpapi"
	"sensorhub/internal/live"
	"sensorhub/internal/modules/telemetry"
	"sensorhub/internal/mqtt"
)

const shutdownTimeout = 10 * time.Second

// Run starts the collector and blocks until ctx is cancelled, the HTTP
// server fails, or the broker manager gives up. In the last case the
// returned error satisfies mqtt.IsFatal.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.DBDriver,
		"dbMaxOpenConns", cfg.DBMaxOpenConns,
		"dbConnMaxUses", cfg.DBConnMaxUses,
		"dbAcquireTimeout", cfg.DBAcquireTimeout,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
		"mqttMaxReconnectAttempts", cfg.MQTTMaxReconnectAttempts,
		"frontendURL", cfg.FrontendURL,
	)

	database, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("db close", "error", err)
		}
	}()
	logger.Info("database connection successful", "driver", cfg.DBDriver)

	if err := database.EnsureSchema(ctx); err != nil {
		return err
	}

	broker := mqtt.NewManager(cfg, logger)
	hub := live.NewHub(cfg.FrontendURL, logger)

	mux := httpapi.NewMux(database, broker, hub, logger)
	telemetry.RegisterFeature(mux, database, broker, hub, logger)
	srv := httpapi.NewServer(cfg, mux, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return broker.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info("http shutting down")
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}

		logger.Info("mqtt disconnecting")
		if err := broker.Close(shutdownCtx); err != nil {
			logger.Error("mqtt close", "error", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		return err
	}
	return ctx.Err()
}
