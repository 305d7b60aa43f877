package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string
	AppName  string
	LogLevel slog.Level
	HTTPAddr string

	// FrontendURL is the only origin granted CORS access. "*" allows any origin.
	FrontendURL    string
	RateLimitRPS   float64
	RateLimitBurst int

	DBDriver          string
	DBDSN             string
	SQLitePath        string
	DBMaxOpenConns    int
	DBConnMaxIdleTime time.Duration
	DBConnMaxLifetime time.Duration
	DBConnMaxUses     int
	DBConnectTimeout  time.Duration
	DBAcquireTimeout  time.Duration

	MQTTBroker               string
	MQTTUsername             string
	MQTTPassword             string
	MQTTTopic                string
	MQTTClientID             string
	MQTTTLSInsecure          bool
	MQTTMaxReconnectAttempts int
	MQTTReconnectInterval    time.Duration
	MQTTConnectTimeout       time.Duration
	MQTTKeepAlive            time.Duration

	MessageTimeout time.Duration
}

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// source resolves a key from the environment first and then from the
// optional YAML file named by CONFIG_FILE.
type source struct {
	file map[string]string
}

func (s source) get(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(s.file[key])
}

func (s source) getDefault(key, def string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return def
}

func LoadFromEnv() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}
	return load(src)
}

func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CONFIG_FILE %q: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode CONFIG_FILE %q: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func load(src source) (Config, error) {
	appEnv := src.getDefault("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(src.getDefault("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	appName := src.getDefault("APP_NAME", "telemetry-collector")

	httpAddr := src.get("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":5000"
		if port := src.get("PORT"); port != "" {
			if _, err := strconv.Atoi(port); err != nil {
				return Config{}, fmt.Errorf("invalid PORT %q: %w", port, err)
			}
			httpAddr = ":" + port
		}
	}

	rateLimitRPS, err := parseFloat(src, "RATE_LIMIT_RPS", "20")
	if err != nil {
		return Config{}, err
	}
	rateLimitBurst, err := parseInt(src, "RATE_LIMIT_BURST", "40")
	if err != nil {
		return Config{}, err
	}

	driver := src.getDefault("DB_DRIVER", DriverPostgres)
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: %s, %s)", driver, DriverPostgres, DriverSQLite)
	}

	dsn := src.get("DB_DSN")
	if dsn == "" && driver == DriverPostgres {
		dsn, err = postgresDSN(src)
		if err != nil {
			return Config{}, err
		}
	}

	sqlitePath := src.getDefault("SQLITE_PATH", "data/telemetry.db")
	if !strings.HasPrefix(sqlitePath, "file:") {
		sqlitePath = filepath.Clean(sqlitePath)
	}

	maxOpenConns, err := parsePositiveInt(src, "DB_MAX_OPEN_CONNS", "20")
	if err != nil {
		return Config{}, err
	}
	connMaxIdleTime, err := parseDuration(src, "DB_CONN_MAX_IDLE_TIME", "30s")
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := parseDuration(src, "DB_CONN_MAX_LIFETIME", "0s")
	if err != nil {
		return Config{}, err
	}
	connMaxUses, err := parseInt(src, "DB_CONN_MAX_USES", "7500")
	if err != nil {
		return Config{}, err
	}
	connectTimeout, err := parseDuration(src, "DB_CONNECT_TIMEOUT", "2s")
	if err != nil {
		return Config{}, err
	}
	acquireTimeout, err := parseDuration(src, "DB_ACQUIRE_TIMEOUT", "2s")
	if err != nil {
		return Config{}, err
	}

	broker := src.getDefault("MQTT_BROKER", "tcp://localhost:1883")
	if _, err := url.Parse(broker); err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_BROKER %q: %w", broker, err)
	}
	tlsInsecure, err := parseBool(src, "MQTT_TLS_INSECURE", "false")
	if err != nil {
		return Config{}, err
	}
	maxReconnect, err := parsePositiveInt(src, "MQTT_MAX_RECONNECT_ATTEMPTS", "10")
	if err != nil {
		return Config{}, err
	}
	reconnectInterval, err := parseDuration(src, "MQTT_RECONNECT_INTERVAL", "5s")
	if err != nil {
		return Config{}, err
	}
	connectTimeoutMQTT, err := parseDuration(src, "MQTT_CONNECT_TIMEOUT", "30s")
	if err != nil {
		return Config{}, err
	}
	keepAlive, err := parseDuration(src, "MQTT_KEEPALIVE", "60s")
	if err != nil {
		return Config{}, err
	}
	messageTimeout, err := parseDuration(src, "MESSAGE_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}
	if messageTimeout <= 0 {
		return Config{}, fmt.Errorf("MESSAGE_TIMEOUT must be positive, got %v", messageTimeout)
	}

	return Config{
		AppEnv:         appEnv,
		AppName:        appName,
		LogLevel:       level,
		HTTPAddr:       httpAddr,
		FrontendURL:    src.get("FRONTEND_URL"),
		RateLimitRPS:   rateLimitRPS,
		RateLimitBurst: rateLimitBurst,

		DBDriver:          driver,
		DBDSN:             dsn,
		SQLitePath:        sqlitePath,
		DBMaxOpenConns:    maxOpenConns,
		DBConnMaxIdleTime: connMaxIdleTime,
		DBConnMaxLifetime: connMaxLifetime,
		DBConnMaxUses:     connMaxUses,
		DBConnectTimeout:  connectTimeout,
		DBAcquireTimeout:  acquireTimeout,

		MQTTBroker:               broker,
		MQTTUsername:             src.get("MQTT_USERNAME"),
		MQTTPassword:             src.get("MQTT_PASSWORD"),
		MQTTTopic:                src.getDefault("MQTT_TOPIC", "sensors/telemetry"),
		MQTTClientID:             src.getDefault("MQTT_CLIENT_ID", appName),
		MQTTTLSInsecure:          tlsInsecure,
		MQTTMaxReconnectAttempts: maxReconnect,
		MQTTReconnectInterval:    reconnectInterval,
		MQTTConnectTimeout:       connectTimeoutMQTT,
		MQTTKeepAlive:            keepAlive,

		MessageTimeout: messageTimeout,
	}, nil
}

func postgresDSN(src source) (string, error) {
	port := src.getDefault("PG_PORT", "5432")
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid PG_PORT %q: %w", port, err)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(src.getDefault("PG_USER", "postgres"), src.get("PG_PASSWORD")),
		Host:   net.JoinHostPort(src.getDefault("PG_HOST", "localhost"), port),
		Path:   "/" + src.getDefault("PG_DATABASE", "telemetry"),
	}
	if mode := src.get("PG_SSLMODE"); mode != "" {
		u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	}
	return u.String(), nil
}

func parseInt(src source, key, def string) (int, error) {
	s := src.getDefault(key, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, n)
	}
	return n, nil
}

func parsePositiveInt(src source, key, def string) (int, error) {
	n, err := parseInt(src, key, def)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%s must be positive, got 0", key)
	}
	return n, nil
}

func parseFloat(src source, key, def string) (float64, error) {
	s := src.getDefault(key, def)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, f)
	}
	return f, nil
}

func parseBool(src source, key, def string) (bool, error) {
	s := src.getDefault(key, def)
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parseDuration(src source, key, def string) (time.Duration, error) {
	s := src.getDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
