package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"sensorhub/internal/config"
)

func TestNewLogger_JSONForReleaseBuilds(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", AppName: "collector", LogLevel: slog.LevelInfo}

	logger := newLogger(&buf, cfg, "1.2.3")
	logger.Info("hello", "password", "hunter2")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if rec["app"] != "collector" || rec["version"] != "1.2.3" || rec["env"] != "prod" {
		t.Errorf("missing base attributes: %v", rec)
	}
	if rec["password"] != "[REDACTED]" {
		t.Errorf("password = %v, want redacted", rec["password"])
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", AppName: "collector", LogLevel: slog.LevelWarn}

	logger := newLogger(&buf, cfg, "1.2.3")
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestNewLogger_TintForDevBuilds(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "dev", AppName: "collector", LogLevel: slog.LevelDebug}

	newLogger(&buf, cfg, "dev").Debug("tinted")

	out := buf.String()
	if !strings.Contains(out, "tinted") {
		t.Fatalf("record missing: %q", out)
	}
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("dev output should be console text, got JSON %q", out)
	}
}
