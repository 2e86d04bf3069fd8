package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/marginalia/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the annotation HTTP server",
	Long: `Start an HTTP server exposing annotation editing sessions for the PDF
documents found in the documents directory.

The server provides, among others, the following endpoints:
  GET  /health                                          - Health check
  GET  /metrics                                         - Prometheus metrics
  GET  /documents/{doc}/pages/{page}/annotations        - List annotations
  POST /documents/{doc}/pages/{page}/ocr                - Recognize a page
  GET  /documents/{doc}/search?q=term                   - Full-text search
  GET  /documents/{doc}/workspace                       - Workspace state
  GET  /ws/ocr?document={doc}                           - Recognition progress stream

Examples:
  marginalia serve
  marginalia serve --port 8080
  marginalia serve --host 0.0.0.0 --documents-dir ./papers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		corsOrigin := cfg.Server.CORSOrigin
		if cmd.Flags().Changed("cors-origin") {
			corsOrigin, _ = cmd.Flags().GetString("cors-origin")
		}
		timeout := cfg.Server.TimeoutSec
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetInt("timeout")
		}
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}
		ocrRate := cfg.Server.OCRRateLimit
		if cmd.Flags().Changed("ocr-rate-limit") {
			ocrRate, _ = cmd.Flags().GetFloat64("ocr-rate-limit")
		}
		ocrBurst := cfg.Server.OCRBurst
		if cmd.Flags().Changed("ocr-burst") {
			ocrBurst, _ = cmd.Flags().GetInt("ocr-burst")
		}

		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		logger := slog.Default()
		b, err := openBackend(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = b.Close() }()

		annotationServer, err := server.NewServer(server.Config{
			Host:         host,
			Port:         port,
			CORSOrigin:   corsOrigin,
			TimeoutSec:   timeout,
			OCRRateLimit: ocrRate,
			OCRBurst:     ocrBurst,
			Opener:       b.open,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		mux := http.NewServeMux()
		annotationServer.SetupRoutes(mux)

		// WriteTimeout stays unset so the progress stream is not cut off.
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(timeout) * time.Second,
			IdleTimeout:       2 * time.Minute,
		}

		go func() {
			logger.Info("Starting annotation server", "host", host, "port", port,
				"documents_dir", cfg.DocumentsDir, "data_dir", cfg.DataDir)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		// Sessions close first so open progress streams receive a close frame.
		if err := annotationServer.Close(); err != nil {
			logger.Error("Session cleanup error", "error", err)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}

		logger.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Float64("ocr-rate-limit", 2, "recognition requests per second per client (0 disables)")
	serveCmd.Flags().Int("ocr-burst", 4, "recognition request burst per client")
}
