package pdf

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dslipak/pdf"
)

// TextLayer reads the vector text of a PDF file page by page. Page texts
// are cached after the first read.
type TextLayer struct {
	path string

	mu     sync.Mutex
	reader *pdf.Reader
	pages  map[int]string
}

// NewTextLayer creates a text layer for a PDF file. The file is opened lazily.
func NewTextLayer(path string) *TextLayer {
	return &TextLayer{path: path, pages: make(map[int]string)}
}

// PageText returns the text of a page, or an empty string when the page has
// no vector text.
func (t *TextLayer) PageText(page int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if text, ok := t.pages[page]; ok {
		return text, nil
	}

	if t.reader == nil {
		reader, err := pdf.Open(t.path)
		if err != nil {
			return "", fmt.Errorf("failed to open PDF %q: %w", t.path, err)
		}
		t.reader = reader
	}

	if page < 1 || page > t.reader.NumPage() {
		return "", fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, t.reader.NumPage())
	}

	text, err := extractPageText(t.reader, page)
	if err != nil {
		return "", err
	}
	t.pages[page] = text
	return text, nil
}

func extractPageText(reader *pdf.Reader, pageNum int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read text of page %d: %v", pageNum, r)
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is null", pageNum)
	}

	rows, rowErr := page.GetTextByRow()
	if rowErr == nil && len(rows) > 0 {
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			if s := strings.TrimSpace(line.String()); s != "" {
				lines = append(lines, s)
			}
		}
		return strings.Join(lines, "\n"), nil
	}

	plain, plainErr := page.GetPlainText(make(map[string]*pdf.Font))
	if plainErr != nil {
		return "", fmt.Errorf("failed to read text of page %d: %w", pageNum, plainErr)
	}
	return strings.TrimSpace(plain), nil
}
