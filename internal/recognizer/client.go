// Package recognizer talks to an HTTP OCR service (GET /health, POST /ocr/image) and adapts it
// to the recognition worker interface of the ocr package.
package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MeKo-Tech/marginalia/internal/ocr"
)

// ErrUnhealthy is returned by Init when the service does not report healthy.
var ErrUnhealthy = errors.New("recognizer: service unhealthy")

// Config holds configuration for the recognition client.
type Config struct {
	BaseURL  string        // e.g. http://localhost:8080
	Timeout  time.Duration // per request timeout
	Language string        // optional language for post-processing rules
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 60 * time.Second,
	}
}

// Client is a recognition worker backed by an HTTP OCR service.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	logger  *slog.Logger
	cleanup CleanOptions
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client. It does not contact the service.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid recognizer URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid recognizer URL %q: unsupported scheme", cfg.BaseURL)
	}

	cleanup := DefaultCleanOptions()
	cleanup.Language = cfg.Language

	c := &Client{
		cfg:     cfg,
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  slog.Default(),
		cleanup: cleanup,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Init checks that the service is reachable and healthy.
func (c *Client) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health"), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("recognizer health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrUnhealthy, resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("recognizer health check failed: %w", err)
	}
	if health.Status != "healthy" {
		return fmt.Errorf("%w: status %q", ErrUnhealthy, health.Status)
	}
	c.logger.Debug("recognizer ready", "url", c.base.String(), "version", health.Version)
	return nil
}

type ocrImageResponse struct {
	OCR *imageResult `json:"ocr"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Recognize uploads a PNG and returns the recognized text in reading order.
// Confidence is reported on a 0-100 scale.
func (c *Client) Recognize(ctx context.Context, png []byte) (ocr.Recognition, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "page.png")
	if err != nil {
		return ocr.Recognition{}, err
	}
	if _, err := part.Write(png); err != nil {
		return ocr.Recognition{}, err
	}
	if err := mw.Close(); err != nil {
		return ocr.Recognition{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/ocr/image"), &body)
	if err != nil {
		return ocr.Recognition{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("recognition request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("failed to read recognition response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return ocr.Recognition{}, fmt.Errorf("recognition failed: HTTP %d: %s", resp.StatusCode, e.Error)
		}
		return ocr.Recognition{}, fmt.Errorf("recognition failed: HTTP %d", resp.StatusCode)
	}

	var decoded ocrImageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ocr.Recognition{}, fmt.Errorf("invalid recognition response: %w", err)
	}
	if decoded.OCR == nil {
		return ocr.Recognition{}, errors.New("invalid recognition response: missing ocr result")
	}

	text, confidence := decoded.OCR.assemble()
	return ocr.Recognition{
		Text:       CleanText(text, c.cleanup),
		Confidence: confidence,
	}, nil
}

// Terminate releases pooled connections.
func (c *Client) Terminate() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// Factory returns a worker factory that creates a client and health checks it.
func Factory(cfg Config, opts ...Option) ocr.WorkerFactory {
	return func(ctx context.Context) (ocr.Recognizer, error) {
		c, err := NewClient(cfg, opts...)
		if err != nil {
			return nil, err
		}
		if err := c.Init(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}
