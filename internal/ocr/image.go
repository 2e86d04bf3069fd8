package ocr

import (
	"bytes"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
)

// EncodePNG encodes img for submission to the recognizer.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CropNormalized crops img to a rectangle given in normalized coordinates.
// The rectangle is intersected with the image bounds.
func CropNormalized(img image.Image, r geometry.Rect) (image.Image, error) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	px := image.Rect(
		b.Min.X+int(math.Floor(r.X*w)),
		b.Min.Y+int(math.Floor(r.Y*h)),
		b.Min.X+int(math.Ceil((r.X+r.Width)*w)),
		b.Min.Y+int(math.Ceil((r.Y+r.Height)*h)),
	).Intersect(b)
	if px.Empty() {
		return nil, ErrEmptyArea
	}
	return imaging.Crop(img, px), nil
}
