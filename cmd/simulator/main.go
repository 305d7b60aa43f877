// Command simulator publishes synthetic battery telemetry to the broker so
// the collector can be exercised without hardware.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"sensorhub/internal/config"
	"sensorhub/internal/logging"
	"sensorhub/internal/mqtt"
)

var version = "dev"

type options struct {
	broker    string
	topic     string
	clientID  string
	interval  time.Duration
	count     int
	dropField string
	malformed bool
}

func main() {
	_ = godotenv.Load()

	var opts options
	pflag.StringVar(&opts.broker, "broker", envOr("MQTT_BROKER", "tcp://localhost:1883"), "broker URL")
	pflag.StringVar(&opts.topic, "topic", envOr("MQTT_TOPIC", "sensors/telemetry"), "topic to publish on")
	pflag.StringVar(&opts.clientID, "client-id", "simulator", "client id prefix")
	pflag.DurationVar(&opts.interval, "interval", 5*time.Second, "time between readings")
	pflag.IntVar(&opts.count, "count", 0, "number of readings to send (0 runs until interrupted)")
	pflag.StringVar(&opts.dropField, "drop-field", "", "omit this field from every payload")
	pflag.BoolVar(&opts.malformed, "malformed", false, "send a payload that is not JSON")
	pflag.Parse()

	logger := logging.New(config.Config{AppName: "simulator", AppEnv: "dev", LogLevel: slog.LevelInfo}, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("simulator failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	pub := mqtt.NewPublisher(mqtt.PublisherConfig{
		Broker:   opts.broker,
		ClientID: opts.clientID,
		Username: os.Getenv("MQTT_USERNAME"),
		Password: os.Getenv("MQTT_PASSWORD"),
		Topic:    opts.topic,
	}, logger)
	defer pub.Disconnect()

	if err := pub.Connect(ctx); err != nil {
		return err
	}

	sim := newBattery()
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for sent := 0; opts.count == 0 || sent < opts.count; sent++ {
		var payload any = sim.next(opts.dropField)
		if opts.malformed {
			payload = []byte("{not json")
		}
		if err := pub.Publish(payload); err != nil {
			logger.Warn("publish failed", "err", err)
		} else {
			logger.Info("reading published", "seq", sent+1, "topic", opts.topic)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// battery is a crude random walk around a 12V pack discharging into a load.
type battery struct {
	soc     float64
	tempIn  float64
	tempOut float64
}

func newBattery() *battery {
	return &battery{soc: 80, tempIn: 24, tempOut: 18}
}

func (b *battery) next(drop string) map[string]float64 {
	b.soc = clamp(b.soc+rand.NormFloat64()*0.5-0.1, 0, 100)
	b.tempIn = b.tempIn + rand.NormFloat64()*0.2
	b.tempOut = b.tempOut + rand.NormFloat64()*0.3

	voltage := 11.8 + 1.0*b.soc/100 + rand.NormFloat64()*0.02
	current := math.Abs(2 + rand.NormFloat64()*0.5)

	reading := map[string]float64{
		"temperature_inside":  round2(b.tempIn),
		"temperature_outside": round2(b.tempOut),
		"voltage":             round2(voltage),
		"current":             round2(current),
		"power":               round2(voltage * current),
		"soc":                 round2(b.soc),
	}
	if drop != "" {
		if _, ok := reading[drop]; !ok {
			fmt.Fprintf(os.Stderr, "warning: --drop-field %q is not a telemetry field\n", drop)
		}
		delete(reading, drop)
	}
	return reading
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
