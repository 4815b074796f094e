// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"clinicsync/internal/logger"
)

// Variables available everywhere
var (
	apiBase         string
	apiKey          string
	sessionEndpoint string
	aiEndpoint      string
	baseDir         string
	dataDirectory   string
	logsDirectory   string

	AllowedOrigin   string // For CORS on the status API
	LogFileFormat   string
	LocalStorePath  string
	RequestTimeout  = 15 * time.Second
	SessionPollRate = 30 * time.Second
)

//
// --- Utility Helpers ---
//

// GetEnvBasedSetting resolves a setting based on ENVIRONMENT (dev or prod).
func GetEnvBasedSetting(base string) string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(env)))
}

// LogCurrentEnvironment logs which environment is running.
func LogCurrentEnvironment() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	if env == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in production environment")
	}
}

//
// --- Loaders ---
//

// LoadEnv reads the .env file, falling back to system environment variables.
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	}

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// LoggerConfig returns a logger.Config struct populated from environment.
func LoggerConfig() logger.Config {
	logDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logDir == "" {
		logDir = "./logs"
	}

	logFormat := GetEnvBasedSetting("LOG_FILE_FORMAT")
	if logFormat == "" {
		logFormat = "clinicsync_%s.log"
	}

	timezone := os.Getenv("TIME_ZONE")
	if timezone == "" {
		timezone = "Local"
	}

	return logger.Config{
		LogsDirectory: logDir,
		LogFileFormat: logFormat,
		TimeZone:      timezone,
	}
}

// ConfigurePaths sets up folders and derived paths.
func ConfigurePaths() {
	wd, err := os.Getwd()
	if err != nil {
		logger.LogFatal("Failed to get working directory: %v", err)
	}
	baseDir = wd

	AllowedOrigin = GetEnvBasedSetting("ALLOWED_ORIGIN")
	if AllowedOrigin == "" {
		AllowedOrigin = "*"
	}

	dataDir := GetEnvBasedSetting("DATA_DIRECTORY")
	if dataDir != "" {
		dataDirectory = dataDir
	} else {
		dataDirectory = filepath.Join(baseDir, "data")
	}

	logsDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logsDir != "" {
		logsDirectory = logsDir
	} else {
		logsDirectory = filepath.Join(baseDir, "logs")
	}

	LocalStorePath = filepath.Join(dataDirectory, "clinicsync.db")
	LogFileFormat = filepath.Join(logsDirectory, "clinicsync_%s.log")
}

// LoadBackendConfig sets up the remote store and identity endpoints.
func LoadBackendConfig() error {
	apiBase = os.Getenv("CLINIC_API_BASE")
	apiKey = os.Getenv("CLINIC_API_KEY")

	if apiBase == "" || apiKey == "" {
		return fmt.Errorf("backend configuration is missing or incomplete (CLINIC_API_BASE, CLINIC_API_KEY)")
	}

	sessionEndpoint = os.Getenv("SESSION_ENDPOINT")
	if sessionEndpoint == "" {
		sessionEndpoint = apiBase + "/auth/v1"
		logger.LogWarn("SESSION_ENDPOINT not set, deriving %s", sessionEndpoint)
	}

	aiEndpoint = os.Getenv("AI_ENDPOINT")
	if aiEndpoint == "" {
		logger.LogWarn("AI_ENDPOINT is not set; scanning and transcription are disabled")
	}

	if pollStr := os.Getenv("SESSION_POLL_SECONDS"); pollStr != "" {
		var seconds int
		if _, err := fmt.Sscanf(pollStr, "%d", &seconds); err != nil || seconds <= 0 {
			logger.LogWarn("Invalid SESSION_POLL_SECONDS: %s, using default %v", pollStr, SessionPollRate)
		} else {
			SessionPollRate = time.Duration(seconds) * time.Second
		}
	}

	return nil
}

//
// --- Getters (exported) ---
//

func APIBase() string {
	return apiBase
}

func APIKey() string {
	return apiKey
}

func SessionEndpoint() string {
	return sessionEndpoint
}

func AIEndpoint() string {
	return aiEndpoint
}

func DataDirectory() string {
	return dataDirectory
}

func LogsDirectory() string {
	return logsDirectory
}
