package pdf

import (
	"testing"

	"github.com/MeKo-Tech/marginalia/internal/geometry"
	"github.com/MeKo-Tech/marginalia/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		name        string
		pageRange   string
		want        []int
		expectError bool
	}{
		{name: "empty range returns nil", pageRange: "", want: nil},
		{name: "blank range returns nil", pageRange: "   ", want: nil},
		{name: "single page", pageRange: "1", want: []int{1}},
		{name: "multiple single pages", pageRange: "1,3,5", want: []int{1, 3, 5}},
		{name: "simple range", pageRange: "1-5", want: []int{1, 2, 3, 4, 5}},
		{name: "mixed pages and ranges", pageRange: "1,3-5,7", want: []int{1, 3, 4, 5, 7}},
		{name: "range with spaces", pageRange: " 1 - 3 , 5 ", want: []int{1, 2, 3, 5}},
		{name: "invalid page number", pageRange: "abc", expectError: true},
		{name: "zero page", pageRange: "0", expectError: true},
		{name: "invalid range format", pageRange: "1-2-3", expectError: true},
		{name: "start greater than end", pageRange: "5-1", expectError: true},
		{name: "invalid start page", pageRange: "abc-5", expectError: true},
		{name: "invalid end page", pageRange: "1-xyz", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePageRange(tt.pageRange)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterPages(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, FilterPages(nil, 3))
	assert.Equal(t, []int{2, 3}, FilterPages([]int{0, 2, 3, 3, 9}, 3))
	assert.Empty(t, FilterPages([]int{4}, 3))
	assert.Empty(t, FilterPages(nil, 0))
}

func TestDocumentPageSize(t *testing.T) {
	doc := &Document{
		path:  "scan.pdf",
		pages: 2,
		sizes: []geometry.Size{{W: 100, H: 200}, {W: 300, H: 400}},
	}

	size, err := doc.PageSize(2)
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{W: 300, H: 400}, size)

	_, err = doc.PageSize(0)
	require.ErrorIs(t, err, ErrPageOutOfRange)
	_, err = doc.PageSize(3)
	require.ErrorIs(t, err, ErrPageOutOfRange)

	assert.Equal(t, 2, doc.PageCount())
	assert.Equal(t, "scan.pdf", doc.Path())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("does-not-exist.pdf")
	assert.Error(t, err)
}

func TestOpenGeneratedDocument(t *testing.T) {
	path := testutil.WritePDF(t, t.TempDir(), "paper.pdf", "Hello marginalia", "Second page", "Third page")

	doc, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount())

	// The MediaBox is inherited from the page tree root.
	size, err := doc.PageSize(2)
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{W: testutil.PageWidth, H: testutil.PageHeight}, size)

	layer := NewTextLayer(path)
	text, err := layer.PageText(1)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello")

	_, err = layer.PageText(4)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}
