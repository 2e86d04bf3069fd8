package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/drawing"
	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
	"github.com/MeKo-Tech/marginalia/internal/persistence"
	"github.com/MeKo-Tech/marginalia/internal/recognizer"
)

// DefaultDataDir holds the local annotation database.
const DefaultDataDir = "data"

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	ocrDefaults := ocr.DefaultConfig()
	recDefaults := recognizer.DefaultConfig()
	stroke := drawing.DefaultStrokeOptions()

	return Config{
		LogLevel:     "info",
		Verbose:      false,
		DataDir:      DefaultDataDir,
		DocumentsDir: ".",
		OCR: OCRConfig{
			AutoOCR:           true,
			Scale:             ocrDefaults.Scale,
			EstimatedDuration: ocrDefaults.EstimatedDuration,
			TickInterval:      ocrDefaults.TickInterval,
			ProgressExpiry:    ocrDefaults.ExpiryDelay,
			RecognizerURL:     recDefaults.BaseURL,
			RecognizerTimeout: recDefaults.Timeout,
		},
		Drawing: DrawingConfig{
			MinShapeSize:    drawing.DefaultMinShapeSize,
			BrushSize:       stroke.BaseBrushSize,
			PressureEnabled: stroke.PressureEnabled,
			Opacity:         stroke.Opacity,
			FreehandMode:    string(stroke.Mode),
			CommitMode:      string(engine.CommitImmediate),
			Color:           annotation.DefaultColor,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OCRRateLimit:    2,
			OCRBurst:        4,
		},
		Remote: RemoteConfig{
			TimeoutSec: 30,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.DataDir == "" {
		return fmt.Errorf("invalid data dir: must not be empty")
	}

	if err := c.validateOCR(); err != nil {
		return err
	}
	if err := c.validateDrawing(); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.OCRRateLimit < 0 {
		return fmt.Errorf("invalid OCR rate limit: %.2f (must not be negative)", c.Server.OCRRateLimit)
	}
	if c.Server.OCRRateLimit > 0 && c.Server.OCRBurst <= 0 {
		return fmt.Errorf("invalid OCR burst: %d (must be positive)", c.Server.OCRBurst)
	}

	if c.Remote.Endpoint != "" {
		if err := validateURL(c.Remote.Endpoint); err != nil {
			return fmt.Errorf("invalid remote endpoint: %w", err)
		}
	}
	if c.Remote.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid remote requests per second: %.2f (must not be negative)", c.Remote.RequestsPerSecond)
	}
	return nil
}

func (c *Config) validateOCR() error {
	if c.OCR.Scale <= 0 {
		return fmt.Errorf("invalid ocr.scale: %.2f (must be positive)", c.OCR.Scale)
	}
	durations := map[string]time.Duration{
		"ocr.estimated_duration": c.OCR.EstimatedDuration,
		"ocr.tick_interval":      c.OCR.TickInterval,
		"ocr.progress_expiry":    c.OCR.ProgressExpiry,
		"ocr.recognizer_timeout": c.OCR.RecognizerTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %s (must be positive)", name, d)
		}
	}
	if err := validateURL(c.OCR.RecognizerURL); err != nil {
		return fmt.Errorf("invalid ocr.recognizer_url: %w", err)
	}
	return nil
}

func (c *Config) validateDrawing() error {
	if c.Drawing.MinShapeSize <= 0 || c.Drawing.MinShapeSize >= 0.5 {
		return fmt.Errorf("invalid drawing.min_shape_size: %.3f (must be between 0 and 0.5)", c.Drawing.MinShapeSize)
	}
	if c.Drawing.BrushSize <= 0 {
		return fmt.Errorf("invalid drawing.brush_size: %.2f (must be positive)", c.Drawing.BrushSize)
	}
	if c.Drawing.Opacity <= 0 {
		return fmt.Errorf("invalid drawing.opacity: %.2f (must be positive)", c.Drawing.Opacity)
	}
	if err := validateThreshold(c.Drawing.Opacity, "drawing.opacity"); err != nil {
		return err
	}
	validModes := []string{string(drawing.ModeStraight), string(drawing.ModeContinuous)}
	if !contains(validModes, c.Drawing.FreehandMode) {
		return fmt.Errorf("invalid freehand mode: %s (must be one of: %s)", c.Drawing.FreehandMode, strings.Join(validModes, ", "))
	}
	if _, err := engine.ParseCommitMode(c.Drawing.CommitMode); err != nil {
		return fmt.Errorf("invalid drawing.commit_mode: %w", err)
	}
	if !hexColor.MatchString(c.Drawing.Color) {
		return fmt.Errorf("invalid drawing.color: %q (must be a hex color)", c.Drawing.Color)
	}
	return nil
}

// ToOCRConfig converts to the recognition pipeline settings.
func (c *Config) ToOCRConfig() ocr.Config {
	return ocr.Config{
		Scale:             c.OCR.Scale,
		EstimatedDuration: c.OCR.EstimatedDuration,
		TickInterval:      c.OCR.TickInterval,
		ExpiryDelay:       c.OCR.ProgressExpiry,
	}
}

// ToRecognizerConfig converts to the recognition worker client settings.
func (c *Config) ToRecognizerConfig() recognizer.Config {
	return recognizer.Config{
		BaseURL:  c.OCR.RecognizerURL,
		Timeout:  c.OCR.RecognizerTimeout,
		Language: c.OCR.Language,
	}
}

// ToEngineConfig converts to the session settings. The configuration is
// expected to be valid.
func (c *Config) ToEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.MinShapeSize = c.Drawing.MinShapeSize
	cfg.AutoOCR = c.OCR.AutoOCR

	tools := engine.DefaultToolState()
	tools.Color = c.Drawing.Color
	tools.Stroke = drawing.StrokeOptions{
		BaseBrushSize:   c.Drawing.BrushSize,
		PressureEnabled: c.Drawing.PressureEnabled,
		Mode:            drawing.FreehandMode(c.Drawing.FreehandMode),
		Opacity:         c.Drawing.Opacity,
	}
	if mode, err := engine.ParseCommitMode(c.Drawing.CommitMode); err == nil {
		tools.CommitMode = mode
	}
	tools.FreehandComments = c.Drawing.FreehandComments
	cfg.Tools = tools
	return cfg
}

// ToRemoteConfig converts to the remote annotation client settings.
func (c *Config) ToRemoteConfig() persistence.RemoteConfig {
	return persistence.RemoteConfig{
		Endpoint:          c.Remote.Endpoint,
		Token:             c.Remote.Token,
		Timeout:           time.Duration(c.Remote.TimeoutSec) * time.Second,
		RequestsPerSecond: c.Remote.RequestsPerSecond,
	}
}

// Helper functions

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// validateURL accepts absolute http and https URLs.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}
