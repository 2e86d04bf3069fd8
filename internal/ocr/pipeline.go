package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/marginalia/internal/common"
	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

// Config controls rendering and the simulated progress estimate.
type Config struct {
	// Scale is the supersampling factor pages are rendered at.
	Scale float64
	// EstimatedDuration is the assumed average recognition time.
	EstimatedDuration time.Duration
	// TickInterval is how often the running estimate is refreshed.
	TickInterval time.Duration
	// ExpiryDelay is how long terminal progress entries stay visible.
	ExpiryDelay time.Duration
}

// DefaultConfig returns the standard pipeline settings.
func DefaultConfig() Config {
	return Config{
		Scale:             2.0,
		EstimatedDuration: 5 * time.Second,
		TickInterval:      200 * time.Millisecond,
		ExpiryDelay:       2 * time.Second,
	}
}

// Pipeline runs at most one recognition job at a time against a lazily
// created worker. A Pipeline belongs to one document session.
type Pipeline struct {
	cfg        Config
	rasterizer Rasterizer
	factory    WorkerFactory
	logger     *slog.Logger
	callback   ProgressCallback

	workerMu sync.Mutex
	worker   Recognizer
	initErr  error

	running atomic.Bool
	closed  atomic.Bool

	results  *ResultCache
	progress *ProgressMap
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig overrides DefaultConfig. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		if cfg.Scale > 0 {
			p.cfg.Scale = cfg.Scale
		}
		if cfg.EstimatedDuration > 0 {
			p.cfg.EstimatedDuration = cfg.EstimatedDuration
		}
		if cfg.TickInterval > 0 {
			p.cfg.TickInterval = cfg.TickInterval
		}
		if cfg.ExpiryDelay > 0 {
			p.cfg.ExpiryDelay = cfg.ExpiryDelay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithCallback registers a progress observer.
func WithCallback(cb ProgressCallback) Option {
	return func(p *Pipeline) { p.callback = cb }
}

// New creates a pipeline. The worker is not created until the first job.
func New(r Rasterizer, factory WorkerFactory, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:        DefaultConfig(),
		rasterizer: r,
		factory:    factory,
		logger:     slog.Default(),
		callback:   NoOpProgressCallback{},
		results:    NewResultCache(),
	}
	for _, o := range opts {
		o(p)
	}
	p.progress = NewProgressMap(p.cfg.ExpiryDelay)
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// IsRunning reports whether a job is in flight.
func (p *Pipeline) IsRunning() bool { return p.running.Load() }

// Result returns the cached recognition for page.
func (p *Pipeline) Result(page int) (Result, bool) { return p.results.Get(page) }

// Results returns a copy of the result cache.
func (p *Pipeline) Results() map[int]Result { return p.results.Snapshot() }

// Progress returns the unexpired progress entries.
func (p *Pipeline) Progress() map[string]Progress { return p.progress.Snapshot() }

// InitError returns the terminal worker initialization error, if any.
func (p *Pipeline) InitError() error {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()
	return p.initErr
}

func (p *Pipeline) acquire() error {
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.running.CompareAndSwap(false, true) {
		ocrRejectedTotal.Inc()
		return ErrBusy
	}
	return nil
}

// RunPage recognizes page and caches the result, replacing an earlier run.
// It fails with ErrBusy when another job is in flight.
func (p *Pipeline) RunPage(ctx context.Context, page int) (Result, error) {
	if page < 1 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	if err := p.acquire(); err != nil {
		return Result{}, err
	}
	defer p.running.Store(false)
	return p.recognizePage(ctx, page)
}

// EnsurePage returns the cached result for page, running recognition when
// there is none.
func (p *Pipeline) EnsurePage(ctx context.Context, page int) (Result, error) {
	if r, ok := p.results.Get(page); ok {
		return r, nil
	}
	return p.RunPage(ctx, page)
}

// RunAll recognizes pages 1..total in order under a single job guard.
// Per-page failures are recorded in progress and do not stop the run; a
// terminal worker failure or cancellation does. It returns the number of
// pages attempted.
func (p *Pipeline) RunAll(ctx context.Context, total int) (int, error) {
	if err := p.acquire(); err != nil {
		return 0, err
	}
	defer p.running.Store(false)

	attempted := 0
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return attempted, err
		}
		attempted++
		if _, err := p.recognizePage(ctx, page); errors.Is(err, ErrWorkerUnavailable) {
			return attempted, err
		}
	}
	return attempted, nil
}

// ExtractArea recognizes the part of page inside the normalized rectangle
// r. It returns nil when the recognized text is empty after trimming. Area
// results are not cached.
func (p *Pipeline) ExtractArea(ctx context.Context, page int, r geometry.Rect) (*Result, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.running.Store(false)

	key := AreaKey(page)
	timer := common.NewNamedTimer(key)
	if err := p.InitError(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}

	p.callback.OnStart(key)
	p.update(key, Progress{Progress: progressStart, Status: StatusExtracting})

	worker, err := p.ensureWorker(ctx)
	if err != nil {
		return nil, p.fail(key, "area", StageInit, err)
	}
	img, err := p.rasterizer.RenderPage(ctx, page, p.cfg.Scale)
	if err != nil {
		return nil, p.fail(key, "area", StageRender, err)
	}
	cropped, err := CropNormalized(img, r)
	if err != nil {
		return nil, p.fail(key, "area", StageRender, err)
	}
	data, err := EncodePNG(cropped)
	if err != nil {
		return nil, p.fail(key, "area", StageEncode, err)
	}
	rec, err := worker.Recognize(ctx, data)
	if err != nil {
		return nil, p.fail(key, "area", StageRecognize, err)
	}

	p.progress.Delete(key)
	res := Result{Text: strings.TrimSpace(rec.Text), Confidence: math.Round(rec.Confidence)}
	p.observe("area", "success", timer)
	p.callback.OnComplete(key, res)
	if res.Text == "" {
		return nil, nil
	}
	return &res, nil
}

func (p *Pipeline) recognizePage(ctx context.Context, page int) (Result, error) {
	key := PageKey(page)
	timer := common.NewNamedTimer(key)
	if err := p.InitError(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}

	p.callback.OnStart(key)
	p.update(key, Progress{Progress: progressStart, Status: StatusInitializing})

	worker, err := p.ensureWorker(ctx)
	if err != nil {
		return Result{}, p.fail(key, "page", StageInit, err)
	}

	p.update(key, Progress{Progress: progressRendering, Status: StatusRendering})
	img, err := p.rasterizer.RenderPage(ctx, page, p.cfg.Scale)
	if err != nil {
		return Result{}, p.fail(key, "page", StageRender, err)
	}

	p.update(key, Progress{Progress: progressRecognizing, Status: StatusRunning})
	data, err := EncodePNG(img)
	if err != nil {
		return Result{}, p.fail(key, "page", StageEncode, err)
	}

	stop := p.startEstimator(key)
	rec, err := worker.Recognize(ctx, data)
	stop()
	if err != nil {
		return Result{}, p.fail(key, "page", StageRecognize, err)
	}

	res := Result{Text: strings.TrimSpace(rec.Text), Confidence: math.Round(rec.Confidence)}
	p.results.Put(page, res)
	p.finish(key, Progress{Progress: progressDone, Status: StatusComplete})
	p.observe("page", "success", timer)
	p.callback.OnComplete(key, res)
	p.logger.Debug("OCR page complete", "page", page, "chars", len(res.Text), "timer", timer)
	return res, nil
}

// ensureWorker creates the worker on first use. A failed initialization
// is remembered and never retried.
func (p *Pipeline) ensureWorker(ctx context.Context) (Recognizer, error) {
	p.workerMu.Lock()
	defer p.workerMu.Unlock()

	if p.worker != nil {
		return p.worker, nil
	}
	if p.initErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorkerUnavailable, p.initErr)
	}
	if p.factory == nil {
		p.initErr = errors.New("no worker factory configured")
	} else {
		w, err := p.factory(ctx)
		if err == nil {
			p.worker = w
			return w, nil
		}
		p.initErr = err
	}
	p.logger.Error("Failed to initialize OCR worker", "error", p.initErr)
	return nil, fmt.Errorf("%w: %w", ErrWorkerUnavailable, p.initErr)
}

func (p *Pipeline) update(key string, pr Progress) {
	p.progress.Set(key, pr)
	p.callback.OnProgress(key, pr)
}

func (p *Pipeline) finish(key string, pr Progress) {
	p.progress.Finish(key, pr)
	p.callback.OnProgress(key, pr)
}

func (p *Pipeline) fail(key, kind string, stage Stage, err error) error {
	p.finish(key, Progress{Progress: 0, Status: ErrorStatus(err)})
	ocrJobsTotal.WithLabelValues(kind, "error").Inc()
	jobErr := &JobError{Key: key, Stage: stage, Err: err}
	p.callback.OnError(key, jobErr)
	if stage != StageInit {
		p.logger.Error("OCR job failed", "key", key, "stage", string(stage), "error", err)
	}
	return jobErr
}

func (p *Pipeline) observe(kind, status string, timer *common.Timer) {
	ocrJobsTotal.WithLabelValues(kind, status).Inc()
	timer.ObserveDuration(ocrJobDuration.WithLabelValues(kind))
}

// startEstimator refreshes the simulated progress of key until the
// returned func is called. The func blocks until the ticker goroutine has
// exited so no estimate can overwrite the terminal entry.
func (p *Pipeline) startEstimator(key string) func() {
	start := time.Now()
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(p.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.update(key, Progress{
					Progress: SimulatedProgress(time.Since(start), p.cfg.EstimatedDuration),
					Status:   StatusRecognizing,
				})
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}

// Close terminates the worker and clears the result cache and progress map.
func (p *Pipeline) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.workerMu.Lock()
	w := p.worker
	p.worker = nil
	p.workerMu.Unlock()

	p.results.Clear()
	p.progress.Clear()
	if w != nil {
		if err := w.Terminate(); err != nil {
			return fmt.Errorf("terminate OCR worker: %w", err)
		}
	}
	return nil
}
