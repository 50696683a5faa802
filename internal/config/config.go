// Package config loads Monolith's runtime configuration from
// environment variables. There are no config files and no hot reload;
// a changed setting takes effect on the next process start.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full set of environment-tunable knobs the supervisor
// and its workers read at startup.
type Config struct {
	NumWorkers      int
	QuantumMS       int
	MemoryPoolBytes int
	LogLevel        string
	MetricsPort     int
	IPCSendTimeout  time.Duration
	HealthPort      int
}

// Load reads Config from the process environment, falling back to
// defaults for anything unset or unparseable.
func Load() Config {
	return Config{
		NumWorkers:      getenvInt("MONOLITH_NUM_WORKERS", 4),
		QuantumMS:       getenvInt("MONOLITH_QUANTUM_MS", 10),
		MemoryPoolBytes: getenvInt("MONOLITH_MEMORY_POOL_BYTES", 64*1024*1024),
		LogLevel:        getenvStr("MONOLITH_LOG_LEVEL", "INFO"),
		MetricsPort:     getenvInt("MONOLITH_METRICS_PORT", 9100),
		IPCSendTimeout:  getenvSeconds("MONOLITH_IPC_SEND_TIMEOUT", 5*time.Second),
		HealthPort:      getenvInt("MONOLITH_HEALTH_PORT", 8080),
	}
}

func getenvStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return def
}
