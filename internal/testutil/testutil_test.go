package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestBuildPDF_XrefOffsets(t *testing.T) {
	data := BuildPDF("Hello (world)", "")

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.4\n")))
	assert.True(t, bytes.HasSuffix(data, []byte("%%EOF\n")))
	assert.Contains(t, string(data), `(Hello \(world\)) Tj`)
	assert.Contains(t, string(data), "/Count 2")

	// Every xref entry points at its "N 0 obj" header.
	entries := regexp.MustCompile(`(?m)^(\d{10}) 00000 n $`).FindAllStringSubmatch(string(data), -1)
	require.Len(t, entries, 7)
	for i, e := range entries {
		off, err := strconv.Atoi(e[1])
		require.NoError(t, err)
		header := strconv.Itoa(i+1) + " 0 obj"
		assert.Equal(t, header, string(data[off:off+len(header)]))
	}

	// startxref points at the xref keyword.
	m := regexp.MustCompile(`startxref\n(\d+)\n`).FindStringSubmatch(string(data))
	require.Len(t, m, 2)
	off, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	assert.Equal(t, "xref", string(data[off:off+4]))
}

func TestWritePDF(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")
	path := WritePDF(t, dir, "sample.pdf", "one")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, BuildPDF("one"), data)
}
