package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Driver selects the store implementation.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config holds all configuration for the wish server.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// DatabaseURL is a SQLite file path or a postgres:// connection string.
	DatabaseURL string

	// LogLevel is the minimum level written to the log.
	LogLevel slog.Level

	// RateLimitRPS is the sustained number of wishes one client may submit
	// per second.
	RateLimitRPS float64

	// RateLimitBurst is the number of wishes one client may submit at once.
	RateLimitBurst int

	// AllowedOrigins restricts which browser origins may open the realtime
	// feed. Empty allows any origin.
	AllowedOrigins []string
}

// Driver returns the store implementation DatabaseURL points at.
func (c *Config) Driver() Driver {
	if strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Load reads configuration from a .env file, if present, and environment
// variables, with sensible defaults.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	port := 3000
	if p := os.Getenv("PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "lanterns.db"
	}

	level := slog.LevelInfo
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		if err := level.UnmarshalText([]byte(l)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	rps := 1.0
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		var err error
		rps, err = strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS %q", v)
		}
	}

	burst := 5
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		var err error
		burst, err = strconv.Atoi(v)
		if err != nil || burst < 1 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_BURST %q", v)
		}
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &Config{
		Port:           port,
		DatabaseURL:    dbURL,
		LogLevel:       level,
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
		AllowedOrigins: origins,
	}, nil
}
