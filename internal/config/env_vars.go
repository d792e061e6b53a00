package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	portEnvVar         = "PORT"
	appNameVar         = "APP_NAME"
	clientConfigEnvVar = "CLIENT_CONFIG"
	logLevelEnvVar     = "LOG_LEVEL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "OAuth2 Provider")
}

// GetClientConfigPath returns the client registry file (.properties, .yaml or .yml).
func (EnvVars) GetClientConfigPath() string {
	return GetEnv(clientConfigEnvVar, "./clients.properties")
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

// GetEnvInt parses envVar as an integer, falling back to defaultValue when it is unset
// or malformed.
func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Err(err).Str("var", envVar).Int("default", defaultValue).Msg("ignoring malformed environment variable")
		return defaultValue
	}
	return n
}

func GetEnvFloat(envVar string, defaultValue float64) float64 {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn().Err(err).Str("var", envVar).Float64("default", defaultValue).Msg("ignoring malformed environment variable")
		return defaultValue
	}
	return f
}

// GetEnvDuration accepts Go duration strings ("15m", "90s").
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Err(err).Str("var", envVar).Dur("default", defaultValue).Msg("ignoring malformed environment variable")
		return defaultValue
	}
	return d
}
