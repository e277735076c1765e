package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies environment overrides on top of a loaded config.
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("THUMBPRINT_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.MetricsPort = p
		}
	}

	if logLevel := os.Getenv("THUMBPRINT_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	if driver := os.Getenv("THUMBPRINT_DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}
	if host := os.Getenv("THUMBPRINT_DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if pass := os.Getenv("THUMBPRINT_DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if path := os.Getenv("THUMBPRINT_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}

	if seed := os.Getenv("THUMBPRINT_SEED"); seed != "" {
		if s, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Calibration.Seed = s
		}
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
