package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/marginalia/internal/config"
	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
	"github.com/MeKo-Tech/marginalia/internal/pdf"
	"github.com/MeKo-Tech/marginalia/internal/persistence"
	"github.com/MeKo-Tech/marginalia/internal/recognizer"
)

// databaseFile is the name of the local annotation database inside data_dir.
const databaseFile = "marginalia.db"

// backend opens document sessions against one local database.
type backend struct {
	cfg    *config.Config
	store  *persistence.LocalStore
	logger *slog.Logger
	// ocrOptions are appended to every pipeline the backend creates.
	ocrOptions []ocr.Option
}

func openBackend(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	store, err := persistence.OpenLocal(filepath.Join(cfg.DataDir, databaseFile), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open annotation database: %w", err)
	}
	return &backend{cfg: cfg, store: store, logger: logger}, nil
}

func (b *backend) Close() error {
	return b.store.Close()
}

// documentPath resolves a document id inside documents_dir.
func (b *backend) documentPath(document string) (string, error) {
	path := filepath.Join(b.cfg.DocumentsDir, filepath.Base(document))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("document %s: %w", document, err)
	}
	return path, nil
}

// open restores the session of a document from the local database and
// attaches a recognition pipeline backed by the configured OCR service.
func (b *backend) open(ctx context.Context, document string) (*engine.Session, error) {
	path, err := b.documentPath(document)
	if err != nil {
		return nil, err
	}
	doc, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}

	logger := b.logger.With("document", document)
	opts := append([]ocr.Option{
		ocr.WithConfig(b.cfg.ToOCRConfig()),
		ocr.WithLogger(logger),
	}, b.ocrOptions...)
	pipeline := ocr.New(
		pdf.NewRasterizer(doc),
		recognizer.Factory(b.cfg.ToRecognizerConfig(), recognizer.WithLogger(logger)),
		opts...,
	)

	sess, err := engine.Open(ctx, document, doc.PageCount(), b.store.Document(document),
		engine.WithConfig(b.cfg.ToEngineConfig()),
		engine.WithOCR(pipeline),
		engine.WithTextSource(pdf.NewTextLayer(path)),
		engine.WithLogger(logger),
	)
	if err != nil {
		_ = pipeline.Close()
		return nil, err
	}
	return sess, nil
}

// withSession opens a session for the duration of fn. Automatic recognition
// on navigation is disabled outside the server.
func withSession(ctx context.Context, document string, fn func(*engine.Session) error, ocrOpts ...ocr.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := GetConfig()
	cfg.OCR.AutoOCR = false

	b, err := openBackend(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	b.ocrOptions = ocrOpts

	sess, err := b.open(ctx, document)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()
	return fn(sess)
}
