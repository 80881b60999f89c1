package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "Swapyard"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultFeeBps         = 250
	defaultEscrowWindow   = 7 * 24 * time.Hour
	defaultDeposit        = 500_000
	defaultSweepInterval  = 10 * time.Minute
	defaultDBMaxConns     = 10
)

// Config captures application runtime configuration loaded from environment
// variables. Escrow policy lives here so services take it explicitly at
// construction; there is no global state.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	DBMaxConns     int64
	RedisURL       string
	OffersBaseURL  string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// EscrowFeeBps is the platform fee in basis points of the principal.
	EscrowFeeBps int64
	// EscrowWindow is how long a funded escrow waits before auto-release.
	EscrowWindow time.Duration
	// ProtectionDeposit is the default principal, in minor currency units,
	// for swap-only offers with no cash amount.
	ProtectionDeposit int64
	// SweepInterval is the cadence of the auto-release scheduler.
	SweepInterval time.Duration
}

// Load reads configuration values from the environment and populates a
// Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        defaultDBMaxConns,
		RedisURL:          os.Getenv("REDIS_URL"),
		OffersBaseURL:     os.Getenv("OFFERS_BASE_URL"),
		ShutdownPeriod:    defaultShutdownDelay,
		IdempotencyTTL:    defaultIdempotencyTTL,
		EscrowFeeBps:      defaultFeeBps,
		EscrowWindow:      defaultEscrowWindow,
		ProtectionDeposit: defaultDeposit,
		SweepInterval:     defaultSweepInterval,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.EscrowWindow, err = durationEnv("ESCROW_WINDOW", cfg.EscrowWindow); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.EscrowFeeBps, err = intEnv("ESCROW_FEE_BPS", cfg.EscrowFeeBps); err != nil {
		return Config{}, err
	}
	if cfg.ProtectionDeposit, err = intEnv("PROTECTION_DEPOSIT", cfg.ProtectionDeposit); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxConns, err = intEnv("DB_MAX_CONNS", cfg.DBMaxConns); err != nil {
		return Config{}, err
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment, where
// in-memory backends replace Postgres and Redis.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
