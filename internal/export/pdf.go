// Package export renders a canvas snapshot to PDF.
package export

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"LiveBoard/internal/state"
)

// Options controls page layout.
type Options struct {
	// Orientation is "L" or "P". Default "L".
	Orientation string
	// PageSize is a gofpdf page size name. Default "A4".
	PageSize string
	// Margin around the drawing area in millimetres. Default 10.
	Margin float64
	// CanvasWidth is the on-screen width, in pixels, that line widths were
	// chosen against. Default 1280.
	CanvasWidth float64
	Title       string
}

func (o Options) withDefaults() Options {
	if o.Orientation == "" {
		o.Orientation = "L"
	}
	if o.PageSize == "" {
		o.PageSize = "A4"
	}
	if o.Margin <= 0 {
		o.Margin = 10
	}
	if o.CanvasWidth <= 0 {
		o.CanvasWidth = 1280
	}
	if o.Title == "" {
		o.Title = "LiveBoard"
	}
	return o
}

// WritePDF draws strokes in history order onto a single page and writes the
// document to w. Strokes with fewer than two points are skipped.
func WritePDF(w io.Writer, strokes []state.Stroke, opts Options) error {
	opts = opts.withDefaults()

	pdf := gofpdf.New(opts.Orientation, "mm", opts.PageSize, "")
	pdf.SetTitle(opts.Title, true)
	pdf.SetCreator("liveboard", true)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	pageW, pageH := pdf.GetPageSize()
	areaW := pageW - 2*opts.Margin
	areaH := pageH - 2*opts.Margin
	mmPerPixel := areaW / opts.CanvasWidth

	for _, st := range strokes {
		if !st.Renderable() {
			continue
		}
		r, g, b := parseColor(st.Color)
		pdf.SetDrawColor(r, g, b)
		pdf.SetLineWidth(st.LineWidth * mmPerPixel)

		first := st.Points[0]
		pdf.MoveTo(opts.Margin+first.X*areaW, opts.Margin+first.Y*areaH)
		for _, p := range st.Points[1:] {
			pdf.LineTo(opts.Margin+p.X*areaW, opts.Margin+p.Y*areaH)
		}
		pdf.DrawPath("D")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// ExportPDF writes strokes to a PDF file at path.
func ExportPDF(path string, strokes []state.Stroke) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	if err := WritePDF(f, strokes, Options{}); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var namedColors = map[string][3]int{
	"black": {0, 0, 0},
	"white": {255, 255, 255},
	"red":   {255, 0, 0},
	"green": {0, 255, 0},
	"blue":  {0, 0, 255},
}

// parseColor understands "#rgb", "#rrggbb" and a few names. Anything else is
// drawn black.
func parseColor(c string) (int, int, int) {
	c = strings.ToLower(strings.TrimSpace(c))
	if rgb, ok := namedColors[c]; ok {
		return rgb[0], rgb[1], rgb[2]
	}
	hex := strings.TrimPrefix(c, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
