package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Chat lifecycle
	AbandonmentThreshold  time.Duration
	ResumeTokenTTL        time.Duration
	TransferAcceptTimeout time.Duration
	MaxConcurrentChats    int // default capacity for newly registered agents
	SweeperInterval       time.Duration
	DispatchInterval      time.Duration

	// WebSocket
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if config.AbandonmentThreshold, err = getEnvSeconds("ABANDONMENT_THRESHOLD_SECONDS", 300); err != nil {
		return nil, err
	}
	if config.ResumeTokenTTL, err = getEnvSeconds("RESUME_TOKEN_TTL_SECONDS", 86400); err != nil {
		return nil, err
	}
	if config.TransferAcceptTimeout, err = getEnvSeconds("TRANSFER_ACCEPT_TIMEOUT_SECONDS", 60); err != nil {
		return nil, err
	}
	if config.SweeperInterval, err = getEnvSeconds("SWEEPER_INTERVAL_SECONDS", 30); err != nil {
		return nil, err
	}
	if config.DispatchInterval, err = getEnvSeconds("DISPATCH_INTERVAL_SECONDS", 1); err != nil {
		return nil, err
	}

	maxChats, err := strconv.Atoi(getEnv("MAX_CONCURRENT_CHATS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_CONCURRENT_CHATS: %w", err)
	}
	if maxChats < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_CHATS must be at least 1, got %d", maxChats)
	}
	config.MaxConcurrentChats = maxChats

	if config.WSReadTimeout, err = getEnvSeconds("WS_READ_TIMEOUT", 60); err != nil {
		return nil, err
	}
	if config.WSWriteTimeout, err = getEnvSeconds("WS_WRITE_TIMEOUT", 10); err != nil {
		return nil, err
	}

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 4096

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnvSeconds parses an integer-seconds environment variable into a duration
func getEnvSeconds(key string, defaultSecs int) (time.Duration, error) {
	secs, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultSecs)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
