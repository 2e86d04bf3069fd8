//nolint:lll
package config

import "time"

// Config represents the complete configuration for marginalia.
// It includes settings for all commands (serve, ocr, annotations, sync) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel     string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose      bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`
	DocumentsDir string `mapstructure:"documents_dir" yaml:"documents_dir" json:"documents_dir"`

	// Page recognition
	OCR OCRConfig `mapstructure:"ocr" yaml:"ocr" json:"ocr"`

	// Pointer drawing and tool defaults
	Drawing DrawingConfig `mapstructure:"drawing" yaml:"drawing" json:"drawing"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Remote annotation service (for sync command)
	Remote RemoteConfig `mapstructure:"remote" yaml:"remote" json:"remote"`
}

// OCRConfig contains page recognition settings.
type OCRConfig struct {
	AutoOCR           bool          `mapstructure:"auto" yaml:"auto" json:"auto"`
	Scale             float64       `mapstructure:"scale" yaml:"scale" json:"scale"`
	EstimatedDuration time.Duration `mapstructure:"estimated_duration" yaml:"estimated_duration" json:"estimated_duration"`
	TickInterval      time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" json:"tick_interval"`
	ProgressExpiry    time.Duration `mapstructure:"progress_expiry" yaml:"progress_expiry" json:"progress_expiry"`

	// Recognition worker
	RecognizerURL     string        `mapstructure:"recognizer_url" yaml:"recognizer_url" json:"recognizer_url"`
	RecognizerTimeout time.Duration `mapstructure:"recognizer_timeout" yaml:"recognizer_timeout" json:"recognizer_timeout"`
	Language          string        `mapstructure:"language" yaml:"language" json:"language"`
}

// DrawingConfig contains stroke and tool defaults.
type DrawingConfig struct {
	MinShapeSize     float64 `mapstructure:"min_shape_size" yaml:"min_shape_size" json:"min_shape_size"`
	BrushSize        float64 `mapstructure:"brush_size" yaml:"brush_size" json:"brush_size"`
	PressureEnabled  bool    `mapstructure:"pressure_enabled" yaml:"pressure_enabled" json:"pressure_enabled"`
	Opacity          float64 `mapstructure:"opacity" yaml:"opacity" json:"opacity"`
	FreehandMode     string  `mapstructure:"freehand_mode" yaml:"freehand_mode" json:"freehand_mode"`
	CommitMode       string  `mapstructure:"commit_mode" yaml:"commit_mode" json:"commit_mode"`
	Color            string  `mapstructure:"color" yaml:"color" json:"color"`
	FreehandComments bool    `mapstructure:"freehand_comments" yaml:"freehand_comments" json:"freehand_comments"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string  `mapstructure:"host" yaml:"host" json:"host"`
	Port            int     `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string  `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	TimeoutSec      int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int     `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OCRRateLimit    float64 `mapstructure:"ocr_rate_limit" yaml:"ocr_rate_limit" json:"ocr_rate_limit"`
	OCRBurst        int     `mapstructure:"ocr_burst" yaml:"ocr_burst" json:"ocr_burst"`
}

// RemoteConfig contains remote annotation service settings.
type RemoteConfig struct {
	Endpoint          string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Token             string  `mapstructure:"token" yaml:"token" json:"-"`
	TimeoutSec        int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
}
