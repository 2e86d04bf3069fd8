package ocr

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

func TestProgressMapExpiry(t *testing.T) {
	m := NewProgressMap(50 * time.Millisecond)
	m.Set("1", Progress{Progress: 30, Status: StatusRunning})
	m.Finish("2", Progress{Progress: 100, Status: StatusComplete})

	snap := m.Snapshot()
	assert.Len(t, snap, 2)

	require.Eventually(t, func() bool {
		_, ok := m.Get("2")
		return !ok
	}, time.Second, 5*time.Millisecond)

	p, ok := m.Get("1")
	require.True(t, ok, "live entries never expire")
	assert.Equal(t, 30, p.Progress)
	assert.Len(t, m.Snapshot(), 1)

	m.Delete("1")
	assert.Empty(t, m.Snapshot())
}

func TestProgressMapZeroExpiryDeletes(t *testing.T) {
	m := NewProgressMap(0)
	m.Set("1", Progress{Progress: 30})
	m.Finish("1", Progress{Progress: 100})
	_, ok := m.Get("1")
	assert.False(t, ok)
}

func TestResultCache(t *testing.T) {
	c := NewResultCache()
	c.Put(3, Result{Text: "c"})
	c.Put(1, Result{Text: "a"})
	c.Put(3, Result{Text: "c2"})

	assert.Equal(t, []int{1, 3}, c.Pages())
	r, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, "c2", r.Text)

	snap := c.Snapshot()
	snap[1] = Result{Text: "mutated"}
	r, _ = c.Get(1)
	assert.Equal(t, "a", r.Text)

	c.Clear()
	assert.Empty(t, c.Pages())
}

func TestCropNormalized(t *testing.T) {
	img := imaging.New(200, 100, color.Black)

	out, err := CropNormalized(img, geometry.Rect{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.5})
	require.NoError(t, err)
	assert.Equal(t, image.Point{X: 100, Y: 50}, out.Bounds().Size())

	out, err = CropNormalized(img, geometry.Rect{X: 0.9, Y: 0.9, Width: 0.5, Height: 0.5})
	require.NoError(t, err)
	assert.Equal(t, image.Point{X: 20, Y: 10}, out.Bounds().Size(), "clipped to the page")

	_, err = CropNormalized(img, geometry.Rect{X: 0.5, Y: 0.5})
	assert.ErrorIs(t, err, ErrEmptyArea)
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(imaging.New(4, 4, color.White))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}

func TestJobErrorUnwrap(t *testing.T) {
	err := &JobError{Key: "clip-2", Stage: StageRender, Err: ErrEmptyArea}
	assert.ErrorIs(t, err, ErrEmptyArea)
	assert.Equal(t, "ocr clip-2 failed during render: ocr: clip area is empty", err.Error())
	assert.Equal(t, "1", PageKey(1))
	assert.Equal(t, "clip-1", AreaKey(1))
}
