package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"sensorhub/internal/config"
)

// NewServer wraps handler with the middleware chain: access log, security
// headers, CORS, then the per-IP rate limit. Headers sit outside CORS so
// refused requests carry them too.
func NewServer(cfg config.Config, handler http.Handler, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	h := rateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, handler)
	h = cors(cfg.FrontendURL, h)
	h = securityHeaders(h)
	h = requestLogger(logger, h)

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}
