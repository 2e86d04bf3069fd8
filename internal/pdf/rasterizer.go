package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/marginalia/internal/ocr"
	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ImageExtractor returns the embedded images of the requested pages, grouped by page number.
type ImageExtractor func(path string, pages []int) (map[int][]image.Image, error)

// Rasterizer turns document pages into bitmaps for recognition. Scanned
// documents carry one full-page image per page; that image is scaled to the
// page size. Pages without embedded images render as blank paper.
type Rasterizer struct {
	doc     *Document
	extract ImageExtractor
}

// RasterizerOption configures a Rasterizer.
type RasterizerOption func(*Rasterizer)

// WithImageExtractor replaces the pdfcpu based extractor.
func WithImageExtractor(fn ImageExtractor) RasterizerOption {
	return func(r *Rasterizer) {
		if fn != nil {
			r.extract = fn
		}
	}
}

// NewRasterizer creates a rasterizer for an opened document.
func NewRasterizer(doc *Document, opts ...RasterizerOption) *Rasterizer {
	r := &Rasterizer{doc: doc, extract: ExtractImages}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ ocr.Rasterizer = (*Rasterizer)(nil)

// RenderPage renders a page at the given scale relative to its size in points.
func (r *Rasterizer) RenderPage(ctx context.Context, page int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size, err := r.doc.PageSize(page)
	if err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 1
	}
	w := int(math.Round(size.W * scale))
	h := int(math.Round(size.H * scale))
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("page %d has empty render size %dx%d", page, w, h)
	}

	images, err := r.extract(r.doc.Path(), []int{page})
	if err != nil {
		return nil, fmt.Errorf("failed to extract page %d: %w", page, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scan := largestImage(images[page])
	if scan == nil {
		return imaging.New(w, h, color.White), nil
	}
	return imaging.Resize(scan, w, h, imaging.Lanczos), nil
}

func largestImage(images []image.Image) image.Image {
	var best image.Image
	bestArea := 0
	for _, img := range images {
		if img == nil {
			continue
		}
		b := img.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	return best
}

// ExtractImages extracts the embedded images of a PDF file using pdfcpu.
// A nil page list extracts every page.
func ExtractImages(path string, pages []int) (map[int][]image.Image, error) {
	tempDir, err := os.MkdirTemp("", "marginalia-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, p := range pages {
		selected = append(selected, strconv.Itoa(p))
	}

	if err := api.ExtractImagesFile(path, tempDir, selected, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}
	return collectExtractedImages(tempDir)
}

// collectExtractedImages walks the given directory and groups images by page number.
// It expects filenames in the pdfcpu format: <name>_<page>_<id>.<ext> or page_<num>_image_<idx>.<ext>.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	result := make(map[int][]image.Image)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		page, err := parsePageFromFilename(info.Name())
		if err != nil {
			return nil
		}
		img, err := loadImageFile(path)
		if err != nil {
			return nil
		}
		result[page] = append(result[page], img)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path comes from our own temp directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}

// parsePageFromFilename extracts the page number from a pdfcpu extracted filename.
func parsePageFromFilename(filename string) (int, error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}

	if parts[0] == "page" {
		return strconv.Atoi(parts[1])
	}
	// pdfcpu names images <pdf name>_<page>_<object id>; the pdf name may itself contain underscores.
	if len(parts) < 3 {
		return 0, errors.New("invalid filename format")
	}
	page, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, errors.New("invalid page number")
	}
	return page, nil
}
