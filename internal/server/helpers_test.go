package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
	"github.com/MeKo-Tech/marginalia/internal/testutil"
)

const testDoc = "paper.pdf"

type stubRasterizer struct{}

func (stubRasterizer) RenderPage(_ context.Context, _ int, _ float64) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 100, 140)), nil
}

type stubRecognizer struct {
	mu   sync.Mutex
	text string
	err  error
}

func (r *stubRecognizer) Recognize(_ context.Context, _ []byte) (ocr.Recognition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return ocr.Recognition{}, r.err
	}
	return ocr.Recognition{Text: r.text, Confidence: 87.6}, nil
}

func (r *stubRecognizer) Terminate() error { return nil }

func (r *stubRecognizer) set(text string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text, r.err = text, err
}

type stubText map[int]string

func (t stubText) PageText(page int) (string, error) { return t[page], nil }

type testServer struct {
	*Server
	mux *http.ServeMux
	rec *stubRecognizer
}

// newTestServer serves five-page documents backed by a stub recognizer.
func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	rec := &stubRecognizer{text: "  recognized page  "}
	text := stubText{3: "The Quick brown fox"}

	cfg := Config{
		CORSOrigin:       "*",
		ProgressInterval: 10 * time.Millisecond,
		Logger:           testutil.DiscardLogger(),
		Opener: func(_ context.Context, doc string) (*engine.Session, error) {
			pipeline := ocr.New(stubRasterizer{},
				func(context.Context) (ocr.Recognizer, error) { return rec, nil },
				ocr.WithConfig(ocr.Config{
					EstimatedDuration: 50 * time.Millisecond,
					TickInterval:      5 * time.Millisecond,
					ExpiryDelay:       time.Hour,
				}))
			sessCfg := engine.DefaultConfig()
			sessCfg.AutoOCR = false
			return engine.New(doc, 5,
				engine.WithConfig(sessCfg),
				engine.WithOCR(pipeline),
				engine.WithTextSource(text),
			), nil
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return &testServer{Server: s, mux: mux, rec: rec}
}

// do sends a request with an optional JSON body through the router.
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}
