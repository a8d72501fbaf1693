package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string

	// BallotRunAt is the scheduled ballot cutover. Zero means the ballot
	// process waits for a manual trigger instead of arming a timer.
	BallotRunAt       time.Time
	RelayPollInterval time.Duration
	OutboxBatchSize   int

	ElectionPhaseOpen bool
	EnableOutboxRelay bool
	EnableBallotTimer bool
}

func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "electsys"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	cfg := Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		RelayPollInterval: envDuration("RELAY_POLL_INTERVAL", 5*time.Second),
		OutboxBatchSize:   100,

		ElectionPhaseOpen: envBool("ELECTION_PHASE_OPEN", true),
		EnableOutboxRelay: envBool("ENABLE_OUTBOX_RELAY", true),
		EnableBallotTimer: envBool("ENABLE_BALLOT_TIMER", true),
	}

	if raw := strings.TrimSpace(os.Getenv("BALLOT_RUN_AT")); raw != "" {
		runAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Config{}, err
		}
		cfg.BallotRunAt = runAt.UTC()
	}
	return cfg, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
