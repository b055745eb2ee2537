package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	AuthRedis = "redis"
	AuthJWT   = "jwt"
	AuthHTTP  = "http"
)

type AppConfig struct {
	ListenAddr string

	Store       string
	RedisURL    string
	DatabaseURL string
	MatchTTL    time.Duration

	AuthMode    string
	JWTSecret   string
	AuthBaseURL string

	WSReadLimit    int64
	WSPingInterval time.Duration
	AllowedOrigins []string

	MsgTemplateDir string

	// Dev seeding, memory store only.
	SeedMatchName string
	SeedWhite     string
	SeedBlack     string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:     ":8080",
		Store:          StoreRedis,
		MatchTTL:       86400 * time.Second,
		AuthMode:       AuthRedis,
		WSReadLimit:    65536,
		WSPingInterval: 30 * time.Second,
	}

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := env("STORE"); v != "" {
		cfg.Store = strings.ToLower(v)
	}
	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")

	if v := env("AUTH_MODE"); v != "" {
		cfg.AuthMode = strings.ToLower(v)
	}
	cfg.JWTSecret = env("JWT_SECRET")
	cfg.AuthBaseURL = env("AUTH_BASE_URL")

	if v := env("MATCH_TTL"); v != "" { // seconds
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("MATCH_TTL must be a non-negative number of seconds: %q", v)
		}
		cfg.MatchTTL = time.Duration(n) * time.Second
	}
	if v := env("WS_READ_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("WS_READ_LIMIT must be a positive byte count: %q", v)
		}
		cfg.WSReadLimit = n
	}
	if v := env("WS_PING_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("WS_PING_INTERVAL must be a positive number of seconds: %q", v)
		}
		cfg.WSPingInterval = time.Duration(n) * time.Second
	}
	if v := env("WS_ALLOWED_ORIGINS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	cfg.MsgTemplateDir = env("MSG_TEMPLATE_DIR")
	cfg.SeedMatchName = env("SEED_MATCH_NAME")
	cfg.SeedWhite = env("SEED_WHITE")
	cfg.SeedBlack = env("SEED_BLACK")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Store {
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORE=redis")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be redis or memory, got %q", c.Store)
	}

	switch c.AuthMode {
	case AuthRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when AUTH_MODE=redis")
		}
	case AuthJWT:
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case AuthHTTP:
		if c.AuthBaseURL == "" {
			return errors.New("AUTH_BASE_URL is required when AUTH_MODE=http")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be redis, jwt or http, got %q", c.AuthMode)
	}

	if c.SeedMatchName != "" && c.Store != StoreMemory {
		return errors.New("SEED_MATCH_NAME only applies to STORE=memory")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
