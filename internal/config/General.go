package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// HostAccount is the ledger account holding the vault's idle balance.
	HostAccount string

	// WebPort is the HTTP API listen port.
	WebPort string
	// AdminToken gates the mutating HTTP endpoints. Empty disables them.
	AdminToken string

	// ManifestPath points at the YAML strategy manifest mounted at boot.
	ManifestPath string

	// SnapshotIntervalSeconds is the reporter's capture interval.
	SnapshotIntervalSeconds int64

	// DBHost being empty disables PostgreSQL persistence entirely.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	HostAccount, err = getEnv("MVAULT_HOST_ACCOUNT")
	if err != nil {
		return err
	}

	ManifestPath, err = getEnv("MVAULT_STRATEGY_MANIFEST")
	if err != nil {
		return err
	}

	WebPort = getEnvOr("WEB_PORT", "8080")
	AdminToken = getEnvOr("MVAULT_ADMIN_TOKEN", "")

	SnapshotIntervalSeconds, err = getEnvAsInt64Or("MVAULT_SNAPSHOT_INTERVAL_SECONDS", 600)
	if err != nil {
		return err
	}

	DBHost = getEnvOr("DB_HOST", "")
	if DBHost != "" {
		DBPort, err = getEnvAsIntOr("DB_PORT", 5432)
		if err != nil {
			return err
		}
		DBUser, err = getEnv("DB_USER")
		if err != nil {
			return err
		}
		DBPassword, err = getEnv("DB_PASSWORD")
		if err != nil {
			return err
		}
		DBName, err = getEnv("DB_NAME")
		if err != nil {
			return err
		}
		DBSSLMode = getEnvOr("DB_SSLMODE", "disable")
	}

	log.Debug().
		Str("HostAccount", HostAccount).
		Str("WebPort", WebPort).
		Str("ManifestPath", ManifestPath).
		Bool("DatabaseEnabled", DBHost != "").
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable with a default.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsIntOr(key string, fallback int) (int, error) {
	valueStr := getEnvOr(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsInt64Or(key string, fallback int64) (int64, error) {
	valueStr := getEnvOr(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}
