// Package environment loads runtime configuration from the process
// environment, with an optional .env file for local development.
package environment

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the runtime configuration of the benchd process.
type Config struct {
	DBPath       string
	HTTPPort     int
	NATSURL      string
	BenchmarkDir string

	MaxWorkers       int64
	DispatchInterval time.Duration
	ReapInterval     time.Duration
	RunTimeout       time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment variables
// win over it.
func Load() Config {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	return Config{
		DBPath:           envString("BENCHD_DB_PATH", "data/benchd.db"),
		HTTPPort:         envInt("BENCHD_HTTP_PORT", 8080),
		NATSURL:          envString("BENCHD_NATS_URL", ""),
		BenchmarkDir:     envString("BENCHD_BENCHMARK_DIR", "benchmarks"),
		MaxWorkers:       int64(envInt("BENCHD_MAX_WORKERS", 4)),
		DispatchInterval: envDuration("BENCHD_DISPATCH_INTERVAL", 60*time.Second),
		ReapInterval:     envDuration("BENCHD_REAP_INTERVAL", 10*time.Minute),
		RunTimeout:       envDuration("BENCHD_RUN_TIMEOUT", 2*time.Hour),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}
