package redline

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config contains process-level configuration for the comparison engine.
// Per-comparison options live in Settings.
type Config struct {
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string
	// Author is the default revision author when a comparison does not set one
	Author string
	// DetailThreshold is the default LCS detail threshold in [0,1]
	DetailThreshold float64
	// TrackFormatting enables formatting-change tracking by default
	TrackFormatting bool
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func init() {
	configOnce.Do(func() {
		globalConfig = ConfigFromEnvironment()
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "info",
		Author:          "go-redline",
		DetailThreshold: 0,
		TrackFormatting: false,
	}
}

// ConfigFromEnvironment creates a configuration from environment variables
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	if val := os.Getenv("REDLINE_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	if val := os.Getenv("REDLINE_AUTHOR"); val != "" {
		config.Author = val
	}

	if val := os.Getenv("REDLINE_DETAIL_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			config.DetailThreshold = f
		}
	}

	if val := os.Getenv("REDLINE_TRACK_FORMATTING"); val != "" {
		config.TrackFormatting = parseBool(val)
	}

	return config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}

	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	if c.DetailThreshold < 0 || c.DetailThreshold > 1 {
		return errors.New("detail threshold must be in [0,1]")
	}

	return nil
}

// GetGlobalConfig returns the global configuration
func GetGlobalConfig() *Config {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	// Return a copy to prevent modification
	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config *Config) {
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	// Update logger based on new config (outside the lock to avoid deadlock)
	UpdateLoggerFromConfig()
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
