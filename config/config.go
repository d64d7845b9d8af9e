// Package config loads engine configuration from a config file, a .env file,
// and OPSAGENT_-prefixed environment variables, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rohanthewiz/logger"
	"github.com/spf13/viper"
)

const (
	defaultModel      = "gemini-2.0-flash"
	defaultTimeout    = 30 * time.Second
	defaultMaxHistory = 100
	defaultWebAddr    = ":8100"
)

// Config holds application configuration.
type Config struct {
	GeminiAPIKey   string
	Model          string
	CommandTimeout time.Duration
	AutoRun        bool
	HistoryFile    string
	MaxHistory     int
	ErrorRing      int
	DBPath         string
	WebAddr        string
}

// globalConfig holds the application configuration instance
var globalConfig *Config

// Initialize sets up the configuration. A missing config file or .env file is
// not an error; environment variables alone are enough to run.
func Initialize() {
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded environment from .env")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "opsagent"))
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("OPSAGENT")
	v.AutomaticEnv()

	v.SetDefault("model", defaultModel)
	v.SetDefault("command_timeout", defaultTimeout.String())
	v.SetDefault("auto_run", false)
	v.SetDefault("history_file", defaultHistoryFile())
	v.SetDefault("max_history", defaultMaxHistory)
	v.SetDefault("error_ring", 5)
	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("web_addr", defaultWebAddr)

	if err := v.ReadInConfig(); err == nil {
		logger.Debug("Loaded config file", "path", v.ConfigFileUsed())
	}

	timeout := defaultTimeout
	if d, err := time.ParseDuration(v.GetString("command_timeout")); err == nil && d > 0 {
		timeout = d
	}

	apiKey := v.GetString("gemini_api_key")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	globalConfig = &Config{
		GeminiAPIKey:   apiKey,
		Model:          v.GetString("model"),
		CommandTimeout: timeout,
		AutoRun:        v.GetBool("auto_run"),
		HistoryFile:    v.GetString("history_file"),
		MaxHistory:     v.GetInt("max_history"),
		ErrorRing:      v.GetInt("error_ring"),
		DBPath:         v.GetString("db_path"),
		WebAddr:        v.GetString("web_addr"),
	}
}

// Get returns the global configuration instance
func Get() *Config {
	if globalConfig == nil {
		Initialize()
	}
	return globalConfig
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "command_history.json"
	}
	return filepath.Join(home, ".opsagent", "command_history.json")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "opsagent.duckdb"
	}
	return filepath.Join(home, ".opsagent", "opsagent.duckdb")
}
