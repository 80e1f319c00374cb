package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBFile       string
	APIAddr      string
	MetricsAddr  string
	BaseURL      string
	UploadsPath  string
	AuthSecret   string
	TokenExpiry  time.Duration
	VAPIDPublic  string
	VAPIDPrivate string
	PushContact  string
}

func Load() (*Config, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBFile:       getEnv("PARLEY_DB", "parley.db"),
		APIAddr:      getEnv("API_ADDR", ":8080"),
		MetricsAddr:  getEnv("METRICS_ADDR", "localhost:9091"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		UploadsPath:  getEnv("UPLOADS_PATH", "uploads"),
		AuthSecret:   os.Getenv("AUTH_SECRET"),
		TokenExpiry:  tokenExpiry,
		VAPIDPublic:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivate: os.Getenv("VAPID_PRIVATE_KEY"),
		PushContact:  getEnv("PUSH_CONTACT", "mailto:admin@localhost"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
