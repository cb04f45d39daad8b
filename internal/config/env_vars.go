package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	apiURLEnvVar    = "API_URL"
	appNameVar      = "APP_NAME"
	tokenFileEnvVar = "TOKEN_FILE"
	logLevelEnvVar  = "LOG_LEVEL"

	defaultTokenDir  = ".eduauth"
	defaultTokenFile = "session.yaml"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetAPIURL returns the base URL of the platform backend (e.g., "https://api.example.com").
// REACT_APP_API_URL is honoured so an existing front-end .env can be reused.
func (EnvVars) GetAPIURL() string {
	url := GetEnv(apiURLEnvVar, GetEnv("REACT_APP_API_URL", "http://localhost:8000"))
	return strings.TrimRight(url, "/")
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Educational Platform")
}

// GetTokenFile returns where the token pair is persisted between runs
func (EnvVars) GetTokenFile() string {
	if file := os.Getenv(tokenFileEnvVar); file != "" {
		return file
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(defaultTokenDir, defaultTokenFile)
	}
	return filepath.Join(home, defaultTokenDir, defaultTokenFile)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, "info")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses envVar as a time.Duration, returning defaultValue when unset or malformed
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
