package pdf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/dslipak/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Letter size in points, used when a page carries no readable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// ErrPageOutOfRange is returned for page numbers outside [1, PageCount].
var ErrPageOutOfRange = errors.New("page out of range")

// Document is an opened PDF file together with its page geometry.
type Document struct {
	path  string
	pages int
	sizes []geometry.Size
}

// Open reads the page count and the page dimensions of a PDF file.
func Open(path string) (*Document, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages of %q: %w", path, err)
	}

	reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %q: %w", path, err)
	}

	sizes := make([]geometry.Size, count)
	for i := range sizes {
		sizes[i] = pageSize(reader, i+1)
	}

	return &Document{path: path, pages: count, sizes: sizes}, nil
}

// Path returns the file the document was opened from.
func (d *Document) Path() string { return d.path }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.pages }

// PageSize returns the size of a page in PDF points.
func (d *Document) PageSize(page int) (geometry.Size, error) {
	if page < 1 || page > d.pages {
		return geometry.Size{}, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, d.pages)
	}
	if page > len(d.sizes) {
		return geometry.Size{W: defaultPageWidth, H: defaultPageHeight}, nil
	}
	return d.sizes[page-1], nil
}

// pageSize reads the MediaBox of a page, walking up the page tree when the
// box is inherited.
func pageSize(reader *pdf.Reader, page int) (size geometry.Size) {
	size = geometry.Size{W: defaultPageWidth, H: defaultPageHeight}
	defer func() {
		// dslipak/pdf panics on some malformed page trees.
		if r := recover(); r != nil {
			size = geometry.Size{W: defaultPageWidth, H: defaultPageHeight}
		}
	}()

	v := reader.Page(page).V
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if w < 0 {
				w = -w
			}
			if h < 0 {
				h = -h
			}
			if w > 0 && h > 0 {
				return geometry.Size{W: w, H: h}
			}
			return size
		}
		v = v.Key("Parent")
	}
	return size
}

// ParsePageRange parses a page range string like "1-5" or "1,3,5".
// An empty string means all pages and yields nil.
func ParsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

// parseRangeToken parses either a single page token (e.g., "3") or a range token (e.g., "1-5").
func parseRangeToken(part string) ([]int, error) {
	if !strings.Contains(part, "-") {
		page, err := strconv.Atoi(part)
		if err != nil || page < 1 {
			return nil, fmt.Errorf("invalid page number: %s", part)
		}
		return []int{page}, nil
	}

	bounds := strings.Split(part, "-")
	if len(bounds) != 2 {
		return nil, fmt.Errorf("invalid range format: %s", part)
	}
	start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
	if err != nil || start < 1 {
		return nil, fmt.Errorf("invalid start page: %s", bounds[0])
	}
	end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid end page: %s", bounds[1])
	}
	if start > end {
		return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
	}

	out := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out, nil
}

// FilterPages drops page numbers outside [1, total] and duplicates, keeping order.
// A nil input selects every page.
func FilterPages(pages []int, total int) []int {
	if pages == nil {
		out := make([]int, total)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}
	seen := make(map[int]bool, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > total || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
