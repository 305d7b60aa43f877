package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"sensorhub/internal/config"
)

// New builds the process logger. Development builds get tinted console output
// with source locations; every other build logs JSON.
func New(cfg config.Config, version string) *slog.Logger {
	return newLogger(os.Stdout, cfg, version)
}

func newLogger(w io.Writer, cfg config.Config, version string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", cfg.AppName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "password" || a.Key == "secret" || a.Key == "token" {
				return slog.String(a.Key, "[REDACTED]")
			}
			return a
		},
	})
	return slog.New(h).With(
		"app", cfg.AppName,
		"version", version,
		"env", cfg.AppEnv,
	)
}
