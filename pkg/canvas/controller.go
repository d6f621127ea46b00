// Package canvas turns raw pointer and touch input into local ink and submitted strokes.
package canvas

import (
	"log/slog"
	"sync"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/overlay"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

const (
	// FadeDuration is how long the local ink takes to fade after release.
	FadeDuration = 600 * time.Millisecond
	// StrokeWidth is the local ink width in CSS pixels.
	StrokeWidth = 16.0

	tapNudge = 0.01
)

// Source is the kind of input device that produced an event.
type Source int

const (
	SourceNone Source = iota
	SourcePointer
	SourceTouch
)

func (s Source) String() string {
	switch s {
	case SourcePointer:
		return "pointer"
	case SourceTouch:
		return "touch"
	default:
		return "none"
	}
}

// Surface is where the controller draws local ink.
type Surface interface {
	// Reset clears every pixel and restores full opacity, cancelling any fade.
	Reset()
	// Line draws a round-capped segment.
	Line(from, to stroke.Point)
	// Fade starts fading the ink out over d.
	Fade(d time.Duration)
}

type Config struct {
	Quant       int
	MinDistance float64
	Clock       overlay.Clock
	// Submit receives every non-empty drained path. It must not block.
	Submit func(path []stroke.Point)
}

func (c *Config) defaults() {
	if c.Quant <= 0 {
		c.Quant = stroke.DefaultQuant
	}
	if c.MinDistance <= 0 {
		c.MinDistance = stroke.DefaultMinDistance
	}
	if c.Clock == nil {
		c.Clock = overlay.RealClock{}
	}
}

// Controller is the idle/drawing state machine behind the drawing canvas. The source that
// starts a stroke owns it until release, and once any pointer event has been seen touch
// events are ignored because browsers deliver both for one finger.
type Controller struct {
	cfg     Config
	surface Surface
	sampler *stroke.Sampler

	mu         sync.Mutex
	drawing    bool
	owner      Source
	sawPointer bool
	last       stroke.Point
	fadeGen    uint64
	fadeTimer  overlay.Timer
	closed     bool
}

func NewController(cfg Config, surface Surface) *Controller {
	cfg.defaults()
	return &Controller{
		cfg:     cfg,
		surface: surface,
		sampler: stroke.NewSampler(cfg.Quant, cfg.MinDistance),
	}
}

func (c *Controller) PointerDown(p stroke.Point) { c.down(SourcePointer, p) }
func (c *Controller) PointerMove(p stroke.Point) { c.move(SourcePointer, p) }
func (c *Controller) PointerUp()                 { c.up(SourcePointer) }
func (c *Controller) PointerCancel()             { c.up(SourcePointer) }
func (c *Controller) TouchStart(p stroke.Point)  { c.down(SourceTouch, p) }
func (c *Controller) TouchMove(p stroke.Point)   { c.move(SourceTouch, p) }
func (c *Controller) TouchEnd()                  { c.up(SourceTouch) }

// Drawing reports whether a stroke is in progress.
func (c *Controller) Drawing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawing
}

// Close cancels a pending fade and ignores all later input.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.drawing = false
	c.cancelFadeLocked()
}

func (c *Controller) accepts(src Source) bool {
	if c.closed {
		return false
	}
	if src == SourceTouch && c.sawPointer {
		return false
	}
	return true
}

func (c *Controller) down(src Source, p stroke.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.accepts(src) || (c.drawing && c.owner != src) {
		return
	}
	// only a pointer that actually starts a stroke disables touch, so a touch stroke in
	// progress can still be released
	if src == SourcePointer {
		c.sawPointer = true
	}
	c.cancelFadeLocked()
	c.surface.Reset()
	c.drawing = true
	c.owner = src
	c.sampler.Start()
	c.sampler.Push(p)
	c.last = p
	c.surface.Line(p, stroke.Point{X: p.X + tapNudge, Y: p.Y + tapNudge})
}

func (c *Controller) move(src Source, p stroke.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.drawing || c.owner != src {
		return
	}
	c.sampler.Push(p)
	c.surface.Line(c.last, p)
	c.last = p
}

func (c *Controller) up(src Source) {
	c.mu.Lock()
	if c.closed || !c.drawing || c.owner != src {
		c.mu.Unlock()
		return
	}
	c.drawing = false
	c.owner = SourceNone
	path := c.sampler.Drain()

	c.surface.Fade(FadeDuration)
	c.fadeGen++
	gen := c.fadeGen
	c.fadeTimer = c.cfg.Clock.AfterFunc(FadeDuration, func() { c.fadeDone(gen) })
	submit := c.cfg.Submit
	c.mu.Unlock()

	if len(path) == 0 || submit == nil {
		return
	}
	slog.Debug("stroke finished", "source", src, "points", len(path))
	submit(path)
}

func (c *Controller) fadeDone(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.fadeGen || c.drawing || c.closed {
		return
	}
	c.fadeTimer = nil
	c.surface.Reset()
}

func (c *Controller) cancelFadeLocked() {
	c.fadeGen++
	if c.fadeTimer != nil {
		c.fadeTimer.Stop()
		c.fadeTimer = nil
	}
}
