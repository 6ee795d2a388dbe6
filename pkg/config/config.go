// Package config provides configuration management for fintool.
// It loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/shunichi-ikebuchi/fintool/pkg/pathutil"
)

// ErrInvalidValue is returned when an environment variable cannot be parsed.
var ErrInvalidValue = errors.New("invalid configuration value")

// DefaultHome is the fintool home directory when FINTOOL_HOME is not set.
const DefaultHome = "~/.fintool"

// Config represents the application configuration.
type Config struct {
	Home     string
	DBType   string
	DBPath   string
	LogLevel slog.Level
	Gmail    GmailConfig
}

// GmailConfig represents Gmail API configuration.
type GmailConfig struct {
	CredentialsPath string
	TokenPath       string
	APIEndpoint     string
	AccessToken     string
	FetchDelay      time.Duration
	RequestTimeout  time.Duration
	PageSize        int64
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	level, err := ParseLogLevel(getEnvOrDefault("FINTOOL_LOGLEVEL", "info"))
	if err != nil {
		return nil, err
	}
	fetchDelay, err := parseDurationEnv("FINTOOL_FETCH_DELAY", 20*time.Millisecond)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := parseDurationEnv("FINTOOL_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	pageSize, err := parseInt64Env("FINTOOL_PAGE_SIZE", 500)
	if err != nil {
		return nil, err
	}

	home := pathutil.ExpandHome(getEnvOrDefault("FINTOOL_HOME", DefaultHome))

	config := &Config{
		Home:     home,
		DBType:   getEnvOrDefault("FINTOOL_DB_TYPE", "csv"),
		DBPath:   os.Getenv("FINTOOL_DB_PATH"),
		LogLevel: level,
		Gmail: GmailConfig{
			CredentialsPath: getEnvOrDefault("GMAIL_CREDENTIALS_PATH", filepath.Join(home, "credentials.json")),
			TokenPath:       getEnvOrDefault("GMAIL_TOKEN_PATH", filepath.Join(home, "token.json")),
			APIEndpoint:     os.Getenv("GMAIL_API_ENDPOINT"),
			AccessToken:     os.Getenv("GMAIL_ACCESS_TOKEN"),
			FetchDelay:      fetchDelay,
			RequestTimeout:  requestTimeout,
			PageSize:        pageSize,
		},
	}

	return config, nil
}

// Paths returns the path resolver rooted at the configured home.
func (c *Config) Paths() *pathutil.PathResolver {
	return pathutil.New(pathutil.Config{
		HomeDir:      c.Home,
		DatabasePath: c.DBPath,
	})
}

// Validate validates the configuration.
// It checks if all required fields are set.
func (c *Config) Validate(required ...[]string) error {
	var missing []string

	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "fintool":
			switch path[1] {
			case "home":
				value = c.Home
			case "dbType":
				value = c.DBType
			}
		case "gmail":
			switch path[1] {
			case "credentialsPath":
				value = c.Gmail.CredentialsPath
			case "tokenPath":
				value = c.Gmail.TokenPath
			case "apiEndpoint":
				value = c.Gmail.APIEndpoint
			case "accessToken":
				value = c.Gmail.AccessToken
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// ParseLogLevel maps debug, info, warning, error and critical to slog levels.
// critical is logged as error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error", "critical":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: FINTOOL_LOGLEVEL=%s", ErrInvalidValue, s)
	}
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt64Env parses an int64 from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseInt64Env(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%s", ErrInvalidValue, key, value)
	}

	return parsed, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%s", ErrInvalidValue, key, value)
	}

	return parsed, nil
}
