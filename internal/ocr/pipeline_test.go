package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

type fakeRasterizer struct {
	w, h  int
	err   error
	calls atomic.Int32
}

func (f *fakeRasterizer) RenderPage(_ context.Context, _ int, scale float64) (image.Image, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return imaging.New(int(float64(f.w)*scale), int(float64(f.h)*scale), color.White), nil
}

type fakeRecognizer struct {
	mu         sync.Mutex
	text       string
	confidence float64
	err        error
	failPages  map[int]bool
	calls      int
	sizes      []image.Point
	block      chan struct{}
	terminated bool
}

func (f *fakeRecognizer) Recognize(_ context.Context, data []byte) (Recognition, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Recognition{}, err
	}
	f.sizes = append(f.sizes, img.Bounds().Size())
	if f.failPages[f.calls] {
		return Recognition{}, errors.New("unreadable page")
	}
	if f.err != nil {
		return Recognition{}, f.err
	}
	return Recognition{Text: f.text, Confidence: f.confidence}, nil
}

func (f *fakeRecognizer) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
	return nil
}

func (f *fakeRecognizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func factoryFor(r Recognizer) WorkerFactory {
	return func(context.Context) (Recognizer, error) { return r, nil }
}

func testConfig() Config {
	return Config{
		Scale:             2,
		EstimatedDuration: 50 * time.Millisecond,
		TickInterval:      5 * time.Millisecond,
		ExpiryDelay:       200 * time.Millisecond,
	}
}

func TestRunPageCachesResultAndExpiresProgress(t *testing.T) {
	rec := &fakeRecognizer{text: "  Hello world \n", confidence: 87.6}
	p := New(&fakeRasterizer{w: 100, h: 50}, factoryFor(rec), WithConfig(testConfig()))

	res, err := p.RunPage(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", res.Text)
	assert.Equal(t, 88.0, res.Confidence)

	cached, ok := p.Result(2)
	require.True(t, ok)
	assert.Equal(t, res, cached)
	assert.Equal(t, []image.Point{{X: 200, Y: 100}}, rec.sizes, "pages are rendered at the supersampling scale")

	pr, ok := p.Progress()[PageKey(2)]
	require.True(t, ok)
	assert.Equal(t, Progress{Progress: 100, Status: StatusComplete}, pr)

	require.Eventually(t, func() bool {
		_, ok := p.Progress()[PageKey(2)]
		return !ok
	}, time.Second, 10*time.Millisecond)
	assert.False(t, p.IsRunning())
}

func TestRunPageRejectsConcurrentJob(t *testing.T) {
	rec := &fakeRecognizer{text: "slow", confidence: 50, block: make(chan struct{})}
	p := New(&fakeRasterizer{w: 10, h: 10}, factoryFor(rec), WithConfig(testConfig()))

	done := make(chan error, 1)
	go func() {
		_, err := p.RunPage(context.Background(), 1)
		done <- err
	}()
	require.Eventually(t, p.IsRunning, time.Second, time.Millisecond)

	_, err := p.RunPage(context.Background(), 3)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = p.ExtractArea(context.Background(), 3, geometry.Rect{Width: 0.5, Height: 0.5})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = p.RunAll(context.Background(), 3)
	assert.ErrorIs(t, err, ErrBusy)
	_, ok := p.Result(3)
	assert.False(t, ok, "rejected request does not touch the cache")
	_, ok = p.Progress()[PageKey(3)]
	assert.False(t, ok)

	close(rec.block)
	require.NoError(t, <-done)
	_, ok = p.Result(1)
	assert.True(t, ok)
}

func TestRunPageFailureNeverCaches(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("boom")}
	p := New(&fakeRasterizer{w: 10, h: 10}, factoryFor(rec), WithConfig(testConfig()))

	for attempt := 0; attempt < 2; attempt++ {
		_, err := p.RunPage(context.Background(), 5)
		require.Error(t, err)
		var jobErr *JobError
		require.ErrorAs(t, err, &jobErr)
		assert.Equal(t, StageRecognize, jobErr.Stage)

		_, ok := p.Result(5)
		assert.False(t, ok)
		pr, ok := p.Progress()[PageKey(5)]
		require.True(t, ok)
		assert.Equal(t, Progress{Progress: 0, Status: "Error: boom"}, pr)
	}

	require.Eventually(t, func() bool {
		return len(p.Progress()) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, p.Results())
}

func TestRenderFailureIsReported(t *testing.T) {
	rec := &fakeRecognizer{text: "x"}
	p := New(&fakeRasterizer{err: errors.New("no raster")}, factoryFor(rec), WithConfig(testConfig()))
	_, err := p.RunPage(context.Background(), 1)
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, StageRender, jobErr.Stage)
	assert.Equal(t, 0, rec.callCount())
}

func TestWorkerInitFailureIsTerminal(t *testing.T) {
	var calls atomic.Int32
	factory := func(context.Context) (Recognizer, error) {
		calls.Add(1)
		return nil, errors.New("model missing")
	}
	cb := &recordingCallback{}
	p := New(&fakeRasterizer{w: 10, h: 10}, factory, WithConfig(testConfig()), WithCallback(cb))

	_, err := p.RunPage(context.Background(), 1)
	require.ErrorIs(t, err, ErrWorkerUnavailable)
	_, err = p.RunPage(context.Background(), 2)
	require.ErrorIs(t, err, ErrWorkerUnavailable)
	_, err = p.ExtractArea(context.Background(), 2, geometry.Rect{Width: 1, Height: 1})
	require.ErrorIs(t, err, ErrWorkerUnavailable)
	n, err := p.RunAll(context.Background(), 4)
	require.ErrorIs(t, err, ErrWorkerUnavailable)
	assert.Equal(t, 1, n)

	assert.Equal(t, int32(1), calls.Load(), "initialization is not retried")
	assert.Equal(t, 1, cb.errorCount(), "failure is reported once")
	assert.Error(t, p.InitError())
}

func TestEnsurePageUsesCache(t *testing.T) {
	rec := &fakeRecognizer{text: "cached", confidence: 90}
	p := New(&fakeRasterizer{w: 10, h: 10}, factoryFor(rec), WithConfig(testConfig()))

	_, err := p.EnsurePage(context.Background(), 1)
	require.NoError(t, err)
	r, err := p.EnsurePage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "cached", r.Text)
	assert.Equal(t, 1, rec.callCount())

	_, err = p.RunPage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.callCount(), "explicit re-run overwrites")
}

func TestRunAllContinuesPastFailures(t *testing.T) {
	rec := &fakeRecognizer{text: "page", confidence: 70, failPages: map[int]bool{2: true}}
	p := New(&fakeRasterizer{w: 10, h: 10}, factoryFor(rec), WithConfig(testConfig()))

	n, err := p.RunAll(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 3}, p.results.Pages())
	assert.False(t, p.IsRunning())
}

func TestRunAllStopsOnCancel(t *testing.T) {
	rec := &fakeRecognizer{text: "page"}
	p := New(&fakeRasterizer{w: 10, h: 10}, factoryFor(rec), WithConfig(testConfig()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := p.RunAll(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestExtractArea(t *testing.T) {
	t.Run("crops to the normalized rectangle", func(t *testing.T) {
		rec := &fakeRecognizer{text: " clipped text ", confidence: 61.2}
		p := New(&fakeRasterizer{w: 100, h: 100}, factoryFor(rec), WithConfig(testConfig()))

		res, err := p.ExtractArea(context.Background(), 3, geometry.Rect{X: 0.25, Y: 0.5, Width: 0.5, Height: 0.25})
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "clipped text", res.Text)
		assert.Equal(t, 61.0, res.Confidence)
		assert.Equal(t, []image.Point{{X: 100, Y: 50}}, rec.sizes)

		_, ok := p.Progress()[AreaKey(3)]
		assert.False(t, ok)
		assert.Empty(t, p.Results(), "area results are not cached")
	})

	t.Run("empty text yields nil", func(t *testing.T) {
		rec := &fakeRecognizer{text: "   \n"}
		p := New(&fakeRasterizer{w: 100, h: 100}, factoryFor(rec), WithConfig(testConfig()))
		res, err := p.ExtractArea(context.Background(), 1, geometry.Rect{Width: 0.5, Height: 0.5})
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("failure records error status", func(t *testing.T) {
		rec := &fakeRecognizer{err: errors.New("bad crop")}
		p := New(&fakeRasterizer{w: 100, h: 100}, factoryFor(rec), WithConfig(testConfig()))
		res, err := p.ExtractArea(context.Background(), 4, geometry.Rect{Width: 0.5, Height: 0.5})
		require.Error(t, err)
		assert.Nil(t, res)
		pr, ok := p.Progress()[AreaKey(4)]
		require.True(t, ok)
		assert.Equal(t, "Error: bad crop", pr.Status)
	})

	t.Run("rectangle outside the page", func(t *testing.T) {
		rec := &fakeRecognizer{text: "x"}
		p := New(&fakeRasterizer{w: 100, h: 100}, factoryFor(rec), WithConfig(testConfig()))
		_, err := p.ExtractArea(context.Background(), 1, geometry.Rect{X: 2, Y: 2, Width: 0.1, Height: 0.1})
		assert.ErrorIs(t, err, ErrEmptyArea)
	})
}

func TestSimulatedProgressDuringRecognition(t *testing.T) {
	rec := &fakeRecognizer{text: "done", block: make(chan struct{})}
	cb := &recordingCallback{}
	p := New(&fakeRasterizer{w: 10, h: 10}, factoryFor(rec), WithConfig(testConfig()), WithCallback(cb))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.RunPage(context.Background(), 1)
	}()
	require.Eventually(t, func() bool {
		pr, ok := p.Progress()[PageKey(1)]
		return ok && pr.Status == StatusRecognizing && pr.Progress == 90
	}, time.Second, time.Millisecond)
	close(rec.block)
	<-done

	updates := cb.progressFor(PageKey(1))
	require.NotEmpty(t, updates)
	assert.Equal(t, Progress{Progress: 0, Status: StatusInitializing}, updates[0])
	assert.Equal(t, Progress{Progress: 15, Status: StatusRendering}, updates[1])
	assert.Equal(t, Progress{Progress: 30, Status: StatusRunning}, updates[2])
	last := 30
	for _, u := range updates[3 : len(updates)-1] {
		assert.Equal(t, StatusRecognizing, u.Status)
		assert.GreaterOrEqual(t, u.Progress, last)
		assert.LessOrEqual(t, u.Progress, 90)
		last = u.Progress
	}
	assert.Equal(t, Progress{Progress: 100, Status: StatusComplete}, updates[len(updates)-1])
}

func TestSimulatedProgress(t *testing.T) {
	est := 5 * time.Second
	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 30},
		{200 * time.Millisecond, 32},
		{2500 * time.Millisecond, 60},
		{5 * time.Second, 90},
		{time.Minute, 90},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SimulatedProgress(tt.elapsed, est), tt.elapsed.String())
	}
	assert.Equal(t, 90, SimulatedProgress(time.Second, 0))
}

func TestCloseTerminatesAndClears(t *testing.T) {
	rec := &fakeRecognizer{text: "x"}
	p := New(&fakeRasterizer{w: 10, h: 10}, factoryFor(rec), WithConfig(testConfig()))
	_, err := p.RunPage(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, rec.terminated)
	assert.Empty(t, p.Results())
	assert.Empty(t, p.Progress())

	_, err = p.RunPage(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, p.Close())
}

func TestInvalidPage(t *testing.T) {
	p := New(&fakeRasterizer{w: 10, h: 10}, factoryFor(&fakeRecognizer{}))
	_, err := p.RunPage(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidPage)
	_, err = p.ExtractArea(context.Background(), -1, geometry.Rect{})
	assert.ErrorIs(t, err, ErrInvalidPage)
}
