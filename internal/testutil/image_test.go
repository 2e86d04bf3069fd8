package testutil

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPage_DrawsText(t *testing.T) {
	blank := RenderPage(DefaultPageImageConfig())
	page := RenderPage(DefaultPageImageConfig("Hello", "World"))

	assert.Equal(t, 320, page.Bounds().Dx())
	assert.Equal(t, 240, page.Bounds().Dy())
	assert.True(t, CompareImages(blank, SolidImage(320, 240, color.White), 0))
	assert.False(t, CompareImages(page, blank, 0))
	assert.True(t, CompareImages(page, blank, 0.05))
}

func TestCompareImages_SizeMismatch(t *testing.T) {
	assert.False(t, CompareImages(SolidImage(2, 2, color.White), SolidImage(3, 2, color.White), 1))
}

func TestPNG_Decodes(t *testing.T) {
	data := PNG(t, SolidImage(4, 3, color.Black))
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}
