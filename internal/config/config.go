package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates the gateway configuration.
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// UpstreamConfig describes the document-search API the gateway talks to.
// UserID is the out-of-band credential passed through verbatim on every
// upstream call.
type UpstreamConfig struct {
	BaseURL      string
	UserID       string
	SendTimeout  time.Duration
	FetchTimeout time.Duration
	SessionLimit int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Upstream: upstream}, nil
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	sendTimeout, err := parseOptionalIntEnv("SEND_TIMEOUT")
	if err != nil {
		return UpstreamConfig{}, err
	}
	sendSeconds := 60
	if sendTimeout != nil {
		if *sendTimeout < 1 {
			return UpstreamConfig{}, fmt.Errorf("SEND_TIMEOUT must be positive, got %d", *sendTimeout)
		}
		sendSeconds = *sendTimeout
	}

	fetchTimeout, err := parseOptionalIntEnv("FETCH_TIMEOUT")
	if err != nil {
		return UpstreamConfig{}, err
	}
	fetchSeconds := 15
	if fetchTimeout != nil {
		if *fetchTimeout < 1 {
			return UpstreamConfig{}, fmt.Errorf("FETCH_TIMEOUT must be positive, got %d", *fetchTimeout)
		}
		fetchSeconds = *fetchTimeout
	}

	limit := 50
	if limitOverride, err := parseOptionalIntEnv("SESSION_LIMIT"); err != nil {
		return UpstreamConfig{}, err
	} else if limitOverride != nil {
		if *limitOverride < 1 {
			return UpstreamConfig{}, fmt.Errorf("SESSION_LIMIT must be positive, got %d", *limitOverride)
		}
		limit = *limitOverride
	}

	return UpstreamConfig{
		BaseURL:      strings.TrimRight(getEnvOrDefault("UPSTREAM_BASE_URL", "http://localhost:8001/api/v1"), "/"),
		UserID:       getEnvOrDefault("USER_ID", "guest"),
		SendTimeout:  time.Duration(sendSeconds) * time.Second,
		FetchTimeout: time.Duration(fetchSeconds) * time.Second,
		SessionLimit: limit,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
