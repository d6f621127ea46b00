package overlay

import (
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"

	"github.com/astromechza/stroke-overlay/pkg/placement"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// FrameOptions controls how RenderFrame lays items out. Zero values take the defaults
// below, which match the browser overlay: 160px boxes 12px from the edge, a 100-unit
// view box with a 6-unit inset scaled by 0.88, and a 4-unit round-capped line.
type FrameOptions struct {
	BoxSize     float64
	Margin      float64
	StrokeWidth float64
	Opacity     float64
}

func (o *FrameOptions) defaults() {
	if o.BoxSize <= 0 {
		o.BoxSize = 160
	}
	if o.Margin <= 0 {
		o.Margin = 12
	}
	if o.StrokeWidth <= 0 {
		o.StrokeWidth = 4
	}
	if o.Opacity <= 0 || o.Opacity > 1 {
		o.Opacity = 0.95
	}
}

// BoxOrigin returns the top-left corner of the item's box on a width x height screen.
func BoxOrigin(p placement.Placement, width, height float64, opts FrameOptions) (float64, float64) {
	opts.defaults()
	switch p.Side {
	case placement.Left:
		return opts.Margin, height * p.Offset / 100
	case placement.Right:
		return width - opts.Margin - opts.BoxSize, height * p.Offset / 100
	default:
		return width * p.Offset / 100, height - opts.Margin - opts.BoxSize
	}
}

// NormalizePath fits path into the 100x100 view box: the bounding box is stretched to 88
// units and shifted by 6, then the whole drawing is inset again by the same transform.
func NormalizePath(path []stroke.Point) []stroke.Point {
	if len(path) == 0 {
		return nil
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range path {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	w, h := maxX-minX, maxY-minY
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	out := make([]stroke.Point, 0, len(path))
	for _, p := range path {
		nx := (p.X-minX)/w*88 + 6
		ny := (p.Y-minY)/h*88 + 6
		out = append(out, stroke.Point{X: 6 + nx*0.88, Y: 6 + ny*0.88})
	}
	return out
}

// RenderFrame draws items onto a transparent width x height image.
func RenderFrame(items []Item, width, height int, opts FrameOptions) image.Image {
	opts.defaults()
	dc := gg.NewContext(width, height)
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	scale := opts.BoxSize / 100
	for _, it := range items {
		ox, oy := BoxOrigin(it.Placement, float64(width), float64(height), opts)
		pts := NormalizePath(it.Path)
		if len(pts) == 0 {
			continue
		}
		r, g, b, _ := colorComponents(it.Color)
		dc.SetRGBA(r, g, b, opts.Opacity)
		dc.SetLineWidth(opts.StrokeWidth * 0.88 * scale)
		dc.NewSubPath()
		dc.MoveTo(ox+pts[0].X*scale, oy+pts[0].Y*scale)
		for _, p := range pts[1:] {
			dc.LineTo(ox+p.X*scale, oy+p.Y*scale)
		}
		dc.Stroke()
	}
	return dc.Image()
}

// SaveFrame renders items and writes them to a PNG file.
func SaveFrame(path string, items []Item, width, height int, opts FrameOptions) error {
	img := RenderFrame(items, width, height, opts)
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("failed to save frame: %w", err)
	}
	return nil
}

// colorComponents parses #RGB or #RRGGBB into 0-1 components, falling back to the
// default stroke color.
func colorComponents(hex string) (r, g, b float64, ok bool) {
	var ri, gi, bi int
	switch len(hex) {
	case 7:
		if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &ri, &gi, &bi); err == nil {
			return float64(ri) / 255, float64(gi) / 255, float64(bi) / 255, true
		}
	case 4:
		if _, err := fmt.Sscanf(hex, "#%1x%1x%1x", &ri, &gi, &bi); err == nil {
			return float64(ri*17) / 255, float64(gi*17) / 255, float64(bi*17) / 255, true
		}
	}
	if hex != placement.FallbackColor {
		return colorComponents(placement.FallbackColor)
	}
	return 0, 0, 1, false
}
