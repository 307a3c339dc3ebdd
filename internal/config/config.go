package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host         string
	Port         string
	Env          string
	LogLevel     string
	LogFormat    string // "json" or "console"
	TickInterval time.Duration
	MaxPhases    int
	RoomIdleTTL  time.Duration
	OutboxSize   int
	StaticDir    string
	DatabaseURL  string // empty keeps templates in memory
}

func (c Config) Addr() string { return net.JoinHostPort(c.Host, c.Port) }

func (c Config) IsDev() bool { return c.Env == "development" }

// Load reads .env files if present, then the process environment. A missing
// .env is not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	c := Config{
		Host:        getEnv("HOST", ""),
		Port:        getEnv("PORT", "3000"),
		Env:         getEnv("ENV", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", ""),
		StaticDir:   getEnv("STATIC_DIR", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
		if c.IsDev() {
			c.LogFormat = "console"
		}
	}

	var err error
	if c.TickInterval, err = getEnvAsDuration("TICK_INTERVAL", time.Second); err != nil {
		return Config{}, err
	}
	if c.RoomIdleTTL, err = getEnvAsDuration("ROOM_IDLE_TTL", 2*time.Hour); err != nil {
		return Config{}, err
	}
	if c.MaxPhases, err = getEnvAsInt("MAX_PHASES", 100); err != nil {
		return Config{}, err
	}
	if c.OutboxSize, err = getEnvAsInt("OUTBOX_SIZE", 16); err != nil {
		return Config{}, err
	}

	if c.TickInterval <= 0 {
		return Config{}, fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.OutboxSize <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_SIZE must be positive, got %d", c.OutboxSize)
	}
	if c.MaxPhases < 0 || c.RoomIdleTTL < 0 {
		return Config{}, errors.New("MAX_PHASES and ROOM_IDLE_TTL must not be negative")
	}
	return c, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
