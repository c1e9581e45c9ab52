package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port             string
	LogLevel         string
	DatabaseURL      string
	DatabaseDriver   string
	RedisURL         string
	ValidatorURL     string
	ValidatorTimeout time.Duration
	JWTSecret        string
	ProfilesDir      string
	PolicyProfile    string
	CORSOrigins      []string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://substrate@localhost:5432/substrate?sslmode=disable"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "postgres"
	}

	validatorTimeout := 5 * time.Second
	if raw := os.Getenv("VALIDATOR_TIMEOUT_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			validatorTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	var corsOrigins []string
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				corsOrigins = append(corsOrigins, o)
			}
		}
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		DatabaseURL:      dbURL,
		DatabaseDriver:   driver,
		RedisURL:         os.Getenv("REDIS_URL"),
		ValidatorURL:     os.Getenv("VALIDATOR_URL"),
		ValidatorTimeout: validatorTimeout,
		JWTSecret:        os.Getenv("JWT_SECRET"),
		ProfilesDir:      os.Getenv("PROFILES_DIR"),
		PolicyProfile:    os.Getenv("POLICY_PROFILE"),
		CORSOrigins:      corsOrigins,
	}
}
