package canvas

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/astromechza/stroke-overlay/pkg/placement"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// ImageSurface is an in-memory Surface backed by a gg context. The fade is linear and is
// applied when the image is read.
type ImageSurface struct {
	mu        sync.Mutex
	dc        *gg.Context
	color     string
	now       func() time.Time
	fadeStart time.Time
	fadeFor   time.Duration
}

var _ Surface = (*ImageSurface)(nil)

// NewImageSurface returns a transparent width x height surface that draws in ink, a hex
// color. An empty ink uses the fallback stroke color.
func NewImageSurface(width, height int, ink string) *ImageSurface {
	if ink == "" {
		ink = placement.FallbackColor
	}
	s := &ImageSurface{dc: gg.NewContext(width, height), color: ink, now: time.Now}
	s.dc.SetLineCap(gg.LineCapRound)
	s.dc.SetLineJoin(gg.LineJoinRound)
	s.dc.SetLineWidth(StrokeWidth)
	s.Reset()
	return s
}

// SetInk changes the color used for later segments, for example after a theme change.
func (s *ImageSurface) SetInk(ink string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color = ink
}

func (s *ImageSurface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dc.SetRGBA(0, 0, 0, 0)
	s.dc.Clear()
	s.fadeFor = 0
}

func (s *ImageSurface) Line(from, to stroke.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dc.SetHexColor(s.color)
	s.dc.DrawLine(from.X, from.Y, to.X, to.Y)
	s.dc.Stroke()
}

func (s *ImageSurface) Fade(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fadeStart = s.now()
	s.fadeFor = d
}

// Opacity is the current fade level between 0 and 1.
func (s *ImageSurface) Opacity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opacityLocked()
}

func (s *ImageSurface) opacityLocked() float64 {
	if s.fadeFor <= 0 {
		return 1
	}
	elapsed := s.now().Sub(s.fadeStart)
	return math.Max(0, 1-float64(elapsed)/float64(s.fadeFor))
}

// Image returns a copy of the ink with the current fade applied.
func (s *ImageSurface) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.dc.Image()
	out := image.NewRGBA(src.Bounds())
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(s.opacityLocked() * 255))})
	draw.DrawMask(out, out.Bounds(), src, src.Bounds().Min, mask, image.Point{}, draw.Over)
	return out
}

func (s *ImageSurface) SavePNG(path string) error {
	if err := gg.SavePNG(path, s.Image()); err != nil {
		return fmt.Errorf("failed to save canvas: %w", err)
	}
	return nil
}
