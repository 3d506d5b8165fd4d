package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
	"github.com/susu3304/warikan/internal/settlement"
)

type Config struct {
	// LINE Login / LIFF
	LineChannelID     string
	LineChannelSecret string
	LineRedirectURI   string
	LiffID            string

	// Discord Bot (optional)
	DiscordToken string

	// Storage; empty DatabaseURL keeps everything in memory
	DatabaseURL string
	RedisURL    string

	// Web Server
	WebBind      string
	WebUIBaseURL string

	// Session
	JWTSecret string

	// Logging
	AppEnv   string
	LogLevel string
	LogDir   string

	Currencies settlement.Currencies
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		LineChannelID:     getenv("LINE_CHANNEL_ID"),
		LineChannelSecret: getenv("LINE_CHANNEL_SECRET"),
		LineRedirectURI:   get("LINE_REDIRECT_URI", "http://localhost:3000/api/auth/callback"),
		LiffID:            getenv("LIFF_ID"),
		DiscordToken:      getenv("DISCORD_TOKEN"),
		DatabaseURL:       getenv("DATABASE_URL"),
		RedisURL:          getenv("REDIS_URL"),
		WebBind:           get("WEB_BIND", "0.0.0.0:3000"),
		JWTSecret:         get("JWT_SECRET", "dev-only-change-me"),
		AppEnv:            get("APP_ENV", "development"),
		LogLevel:          get("LOG_LEVEL", "info"),
		LogDir:            get("LOG_DIR", "logs"),
	}
	cfg.WebUIBaseURL = extractBaseURL(cfg.LineRedirectURI)

	if cfg.LineChannelID == "" {
		return nil, fmt.Errorf("LINE_CHANNEL_ID is required")
	}
	if cfg.AppEnv == "production" && cfg.JWTSecret == "dev-only-change-me" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	overrides, err := settlement.ParseCurrencies(getenv("CURRENCY_PRECISION"))
	if err != nil {
		return nil, fmt.Errorf("CURRENCY_PRECISION: %w", err)
	}
	cfg.Currencies = settlement.DefaultCurrencies().Merge(overrides)

	return cfg, nil
}

func extractBaseURL(redirectURI string) string {
	// e.g., "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
