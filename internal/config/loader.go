package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "marginalia"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "MARGINALIA"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so cobra flag
// bindings are visible.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on an isolated viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables, and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithoutValidation is Load without the validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.LoadWithFileWithoutValidation("")
}

// LoadWithFile loads configuration from a specific file path. An empty path
// searches the standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	config, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if err := l.read(configFile); err != nil {
		return nil, err
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func (l *Loader) read(configFile string) error {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile == "" {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()

		if err := l.v.ReadInConfig(); err != nil {
			// A missing config file is fine: defaults and env vars apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
		return nil
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", configFile)
	}
	l.v.SetConfigFile(configFile)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	return nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)
	l.v.SetDefault("data_dir", defaults.DataDir)
	l.v.SetDefault("documents_dir", defaults.DocumentsDir)

	// OCR defaults
	l.v.SetDefault("ocr.auto", defaults.OCR.AutoOCR)
	l.v.SetDefault("ocr.scale", defaults.OCR.Scale)
	l.v.SetDefault("ocr.estimated_duration", defaults.OCR.EstimatedDuration)
	l.v.SetDefault("ocr.tick_interval", defaults.OCR.TickInterval)
	l.v.SetDefault("ocr.progress_expiry", defaults.OCR.ProgressExpiry)
	l.v.SetDefault("ocr.recognizer_url", defaults.OCR.RecognizerURL)
	l.v.SetDefault("ocr.recognizer_timeout", defaults.OCR.RecognizerTimeout)
	l.v.SetDefault("ocr.language", defaults.OCR.Language)

	// Drawing defaults
	l.v.SetDefault("drawing.min_shape_size", defaults.Drawing.MinShapeSize)
	l.v.SetDefault("drawing.brush_size", defaults.Drawing.BrushSize)
	l.v.SetDefault("drawing.pressure_enabled", defaults.Drawing.PressureEnabled)
	l.v.SetDefault("drawing.opacity", defaults.Drawing.Opacity)
	l.v.SetDefault("drawing.freehand_mode", defaults.Drawing.FreehandMode)
	l.v.SetDefault("drawing.commit_mode", defaults.Drawing.CommitMode)
	l.v.SetDefault("drawing.color", defaults.Drawing.Color)
	l.v.SetDefault("drawing.freehand_comments", defaults.Drawing.FreehandComments)

	// Server defaults
	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	l.v.SetDefault("server.ocr_rate_limit", defaults.Server.OCRRateLimit)
	l.v.SetDefault("server.ocr_burst", defaults.Server.OCRBurst)

	// Remote defaults
	l.v.SetDefault("remote.endpoint", defaults.Remote.Endpoint)
	l.v.SetDefault("remote.token", defaults.Remote.Token)
	l.v.SetDefault("remote.timeout_sec", defaults.Remote.TimeoutSec)
	l.v.SetDefault("remote.requests_per_second", defaults.Remote.RequestsPerSecond)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile generates a default configuration file.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "marginalia"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "marginalia"))
	}

	return append(paths, "/etc/marginalia")
}
