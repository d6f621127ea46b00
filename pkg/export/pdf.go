// Package export writes strokes out as a printable PDF contact sheet.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/astromechza/stroke-overlay/pkg/overlay"
	"github.com/astromechza/stroke-overlay/pkg/placement"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

const (
	columns   = 4
	cellSize  = 45.0
	pageInset = 10.0
	caption   = 5.0
)

// Sheet lays strokes out in a grid on A4 pages, each fitted into its own cell the same way
// the overlay fits them into a box, colored with palette.
func Sheet(strokes []stroke.Stroke, palette placement.Palette) *gofpdf.Fpdf {
	p := gofpdf.New("P", "mm", "A4", "")
	p.SetFont("Helvetica", "", 7)
	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")
	_, pageH := p.GetPageSize()
	rows := int((pageH - 2*pageInset) / (cellSize + caption))

	p.AddPage()
	if len(strokes) == 0 {
		p.Text(pageInset, pageInset+caption, "no strokes")
	}
	for i, st := range strokes {
		slot := i % (columns * rows)
		if i > 0 && slot == 0 {
			p.AddPage()
		}
		x := pageInset + float64(slot%columns)*cellSize
		y := pageInset + float64(slot/columns)*(cellSize+caption)

		p.SetDrawColor(220, 220, 220)
		p.SetLineWidth(0.2)
		p.Rect(x, y, cellSize, cellSize, "D")
		p.SetTextColor(90, 90, 90)
		p.Text(x+1, y+cellSize+caption-1.5, label(st))

		r, g, b := rgb(palette.Color(st.ID))
		p.SetDrawColor(r, g, b)
		p.SetLineWidth(0.8)
		scale := cellSize / 100
		path := overlay.NormalizePath(st.Path)
		if len(path) == 1 {
			p.Circle(x+path[0].X*scale, y+path[0].Y*scale, 0.4, "D")
		}
		for j := 1; j < len(path); j++ {
			p.Line(
				x+path[j-1].X*scale, y+path[j-1].Y*scale,
				x+path[j].X*scale, y+path[j].Y*scale,
			)
		}
	}
	return p
}

// WritePDF renders the sheet to w.
func WritePDF(w io.Writer, strokes []stroke.Stroke, palette placement.Palette) error {
	return Sheet(strokes, palette).Output(w)
}

// WritePDFFile renders the sheet to a file at path.
func WritePDFFile(path string, strokes []stroke.Stroke, palette placement.Palette) error {
	return Sheet(strokes, palette).OutputFileAndClose(path)
}

func label(st stroke.Stroke) string {
	id := st.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if st.CreatedAt.IsZero() {
		return id
	}
	return fmt.Sprintf("%s %s", id, st.CreatedAt.UTC().Format("15:04:05.000"))
}

// rgb parses #RRGGBB, falling back to black.
func rgb(hex string) (int, int, int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int((v >> 16) & 0xff), int((v >> 8) & 0xff), int(v & 0xff)
}
