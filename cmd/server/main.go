package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"sensorhub/internal/app"
	"sensorhub/internal/config"
	"sensorhub/internal/logging"
	"sensorhub/internal/mqtt"
)

// Default version is "dev" if not set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	var (
		configFile  string
		envFile     string
		showVersion bool
	)
	pflag.StringVarP(&configFile, "config", "c", "", "YAML config file (same keys as the environment)")
	pflag.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pflag.BoolVarP(&showVersion, "version", "v", false, "print version and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}
	if configFile != "" {
		_ = os.Setenv("CONFIG_FILE", configFile)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version)
	slog.SetDefault(logger)

	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		if mqtt.IsFatal(err) {
			slog.Error("broker unreachable, exiting", "err", err)
		} else {
			slog.Error("run failed", "err", err)
		}
		stop()
		os.Exit(1)
	}

	slog.Info("shutting down")
}
