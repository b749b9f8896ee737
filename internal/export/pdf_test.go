package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LiveBoard/internal/state"
)

func sampleStrokes() []state.Stroke {
	return []state.Stroke{
		{ID: "s1", UserID: "a", Color: "#ff0000", LineWidth: 5,
			Points: []state.Point{{X: 0, Y: 0}, {X: 0.5, Y: 0.5}, {X: 1, Y: 1}}},
		{ID: "dot", UserID: "b", Color: "#00f", LineWidth: 5,
			Points: []state.Point{{X: 0.2, Y: 0.2}}},
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, sampleStrokes(), Options{}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestWritePDFEmptyCanvas(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, nil, Options{Orientation: "P"}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestExportPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.pdf")
	require.NoError(t, ExportPDF(path, sampleStrokes()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b int
	}{
		{"#000000", 0, 0, 0},
		{"#FF8000", 255, 128, 0},
		{"#0f0", 0, 255, 0},
		{"blue", 0, 0, 255},
		{"not-a-colour", 0, 0, 0},
		{"#12345", 0, 0, 0},
	}
	for _, tt := range tests {
		r, g, b := parseColor(tt.in)
		assert.Equal(t, [3]int{tt.r, tt.g, tt.b}, [3]int{r, g, b}, tt.in)
	}
}
