package canvas

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/channel"
	"github.com/astromechza/stroke-overlay/pkg/overlay"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*stepTimer
}

type stepTimer struct {
	at   time.Time
	f    func()
	dead bool
}

func (t *stepTimer) Stop() bool {
	was := !t.dead
	t.dead = true
	return was
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) AfterFunc(d time.Duration, f func()) overlay.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &stepTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*stepTimer
	for _, t := range c.timers {
		if !t.dead && !t.at.After(c.now) {
			t.dead = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type op struct {
	kind     string
	from, to stroke.Point
}

type recordingSurface struct {
	mu  sync.Mutex
	ops []op
}

func (s *recordingSurface) Reset() { s.add(op{kind: "reset"}) }
func (s *recordingSurface) Line(from, to stroke.Point) {
	s.add(op{kind: "line", from: from, to: to})
}
func (s *recordingSurface) Fade(time.Duration) { s.add(op{kind: "fade"}) }

func (s *recordingSurface) add(o op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, o)
}

func (s *recordingSurface) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ops))
	for _, o := range s.ops {
		out = append(out, o.kind)
	}
	return out
}

func (s *recordingSurface) last() op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops[len(s.ops)-1]
}

type harness struct {
	c       *Controller
	surface *recordingSurface
	clock   *stepClock
	paths   [][]stroke.Point
}

func newHarness() *harness {
	h := &harness{surface: &recordingSurface{}, clock: &stepClock{now: time.Unix(0, 0)}}
	h.c = NewController(Config{Clock: h.clock, Submit: func(p []stroke.Point) { h.paths = append(h.paths, p) }}, h.surface)
	return h
}

func equalKinds(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestController_DownDrawsTapSegment(t *testing.T) {
	h := newHarness()
	h.c.PointerDown(stroke.Point{X: 10, Y: 20})
	if !h.c.Drawing() {
		t.Fatal("Drawing() = false after down")
	}
	if got := h.surface.kinds(); !equalKinds(got, []string{"reset", "line"}) {
		t.Fatalf("ops = %v", got)
	}
	l := h.surface.last()
	if l.from != (stroke.Point{X: 10, Y: 20}) || l.to != (stroke.Point{X: 10.01, Y: 20.01}) {
		t.Errorf("tap segment = %+v", l)
	}
}

func TestController_StrokeIsSampledAndSubmitted(t *testing.T) {
	h := newHarness()
	h.c.PointerDown(stroke.Point{X: 0, Y: 0})
	h.c.PointerMove(stroke.Point{X: 0.2, Y: 0})
	h.c.PointerMove(stroke.Point{X: 1, Y: 0})
	h.c.PointerMove(stroke.Point{X: 2.5, Y: 1})
	l := h.surface.last()
	if l.from != (stroke.Point{X: 1, Y: 0}) || l.to != (stroke.Point{X: 2.5, Y: 1}) {
		t.Errorf("last segment = %+v, want from the previous raw point", l)
	}
	h.c.PointerUp()

	if len(h.paths) != 1 {
		t.Fatalf("submitted %d paths, want 1", len(h.paths))
	}
	want := []stroke.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2.5, Y: 1}}
	got := h.paths[0]
	if len(got) != len(want) {
		t.Fatalf("path = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("path[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if h.c.Drawing() {
		t.Error("Drawing() = true after up")
	}
}

func TestController_TapSubmitsTwoPoints(t *testing.T) {
	h := newHarness()
	h.c.PointerDown(stroke.Point{X: 5, Y: 5})
	h.c.PointerUp()
	if len(h.paths) != 1 || len(h.paths[0]) != 2 {
		t.Fatalf("paths = %v", h.paths)
	}
}

func TestController_MoveWithoutDownIgnored(t *testing.T) {
	h := newHarness()
	h.c.PointerMove(stroke.Point{X: 1, Y: 1})
	h.c.PointerUp()
	if len(h.surface.kinds()) != 0 || len(h.paths) != 0 {
		t.Errorf("ops = %v, paths = %v", h.surface.kinds(), h.paths)
	}
}

func TestController_FadeClearsAfterDelay(t *testing.T) {
	h := newHarness()
	h.c.PointerDown(stroke.Point{X: 1, Y: 1})
	h.c.PointerUp()
	if got := h.surface.last().kind; got != "fade" {
		t.Fatalf("last op = %v, want fade", got)
	}
	h.clock.Advance(FadeDuration - time.Millisecond)
	if got := h.surface.last().kind; got != "fade" {
		t.Fatalf("cleared early: last op = %v", got)
	}
	h.clock.Advance(time.Millisecond)
	if got := h.surface.last().kind; got != "reset" {
		t.Errorf("last op = %v, want reset", got)
	}
}

func TestController_NewStrokeCancelsPendingClear(t *testing.T) {
	h := newHarness()
	h.c.PointerDown(stroke.Point{X: 1, Y: 1})
	h.c.PointerUp()
	h.clock.Advance(300 * time.Millisecond)
	h.c.PointerDown(stroke.Point{X: 50, Y: 50})
	before := len(h.surface.kinds())
	h.clock.Advance(time.Second)
	if after := len(h.surface.kinds()); after != before {
		t.Errorf("stale fade touched the surface: %v", h.surface.kinds()[before:])
	}
	if !h.c.Drawing() {
		t.Error("second stroke interrupted")
	}
}

func TestController_TouchIgnoredAfterPointer(t *testing.T) {
	h := newHarness()
	h.c.PointerDown(stroke.Point{X: 1, Y: 1})
	h.c.TouchStart(stroke.Point{X: 1, Y: 1})
	h.c.TouchMove(stroke.Point{X: 9, Y: 9})
	h.c.TouchEnd()
	if !h.c.Drawing() {
		t.Fatal("touch end released a pointer stroke")
	}
	h.c.PointerUp()
	if len(h.paths) != 1 {
		t.Fatalf("submitted %d paths, want 1", len(h.paths))
	}

	h.c.TouchStart(stroke.Point{X: 3, Y: 3})
	if h.c.Drawing() {
		t.Error("touch started a stroke after pointer events were seen")
	}
}

func TestController_PointerDuringTouchStroke(t *testing.T) {
	h := newHarness()
	h.c.TouchStart(stroke.Point{X: 1, Y: 1})
	h.c.PointerDown(stroke.Point{X: 1, Y: 1})
	h.c.TouchMove(stroke.Point{X: 9, Y: 9})
	h.c.TouchEnd()
	h.c.PointerUp()
	if h.c.Drawing() {
		t.Fatal("controller still drawing after the touch stroke ended")
	}
	if len(h.paths) != 1 || len(h.paths[0]) != 2 || h.paths[0][1] != (stroke.Point{X: 9, Y: 9}) {
		t.Fatalf("paths = %v, want the touch stroke", h.paths)
	}

	h.c.PointerDown(stroke.Point{X: 20, Y: 20})
	h.c.PointerMove(stroke.Point{X: 30, Y: 20})
	h.c.PointerUp()
	if h.c.Drawing() || len(h.paths) != 2 {
		t.Fatalf("Drawing() = %v, paths = %v after a pointer stroke", h.c.Drawing(), h.paths)
	}

	h.c.TouchStart(stroke.Point{X: 3, Y: 3})
	if h.c.Drawing() {
		t.Error("touch started a stroke after a pointer stroke")
	}
}

func TestController_TouchOnlyDevice(t *testing.T) {
	h := newHarness()
	h.c.TouchStart(stroke.Point{X: 1, Y: 1})
	h.c.TouchMove(stroke.Point{X: 4, Y: 5})
	h.c.PointerUp()
	if !h.c.Drawing() {
		t.Fatal("pointer up released a touch stroke")
	}
	h.c.TouchEnd()
	if len(h.paths) != 1 || len(h.paths[0]) != 2 {
		t.Errorf("paths = %v", h.paths)
	}
}

func TestController_CancelEndsStroke(t *testing.T) {
	h := newHarness()
	h.c.PointerDown(stroke.Point{X: 1, Y: 1})
	h.c.PointerMove(stroke.Point{X: 10, Y: 1})
	h.c.PointerCancel()
	if h.c.Drawing() || len(h.paths) != 1 {
		t.Errorf("Drawing() = %v, paths = %v", h.c.Drawing(), h.paths)
	}
}

func TestController_Close(t *testing.T) {
	h := newHarness()
	h.c.PointerDown(stroke.Point{X: 1, Y: 1})
	h.c.PointerUp()
	h.c.Close()
	n := len(h.surface.kinds())
	h.clock.Advance(time.Second)
	h.c.PointerDown(stroke.Point{X: 1, Y: 1})
	if len(h.surface.kinds()) != n {
		t.Errorf("surface used after Close: %v", h.surface.kinds()[n:])
	}
}

func TestSubmitter(t *testing.T) {
	ch := channel.NewMemory()
	var got []stroke.Record
	ch.SubscribeInserts(func(r stroke.Record) { got = append(got, r) })

	s := NewSubmitter(ch, 100, "owner-1")
	var sentErr error
	var sentID string
	s.OnSent = func(id string, err error) { sentID, sentErr = id, err }

	if err := s.Submit(nil); !errors.Is(err, stroke.ErrEmptyStroke) {
		t.Errorf("Submit(nil) = %v, want ErrEmptyStroke", err)
	}
	if err := s.Submit([]stroke.Point{{X: 12.345, Y: 7.89}}); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	if sentErr != nil || sentID == "" {
		t.Fatalf("OnSent(%q, %v)", sentID, sentErr)
	}
	if len(got) != 1 || got[0].ID != sentID || got[0].OwnerID != "owner-1" {
		t.Fatalf("inserts = %+v", got)
	}
	payload, err := stroke.ParsePayload(got[0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if payload.P[0] != [2]int{1235, 789} {
		t.Errorf("payload = %v, want [[1235 789]]", payload.P)
	}
}

func TestSubmitter_SendFailureIsReported(t *testing.T) {
	ch := channel.NewMemory()
	ch.SendErr = errors.New("offline")
	s := NewSubmitter(ch, 0, "")
	var sentErr error
	s.OnSent = func(_ string, err error) { sentErr = err }
	if err := s.Submit([]stroke.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}); err != nil {
		t.Fatal(err)
	}
	s.Wait()
	if sentErr == nil {
		t.Error("expected the send error to be reported")
	}
	if recs, _ := ch.FetchRecent(context.Background(), 10); len(recs) != 0 {
		t.Errorf("FetchRecent() = %v, want empty", recs)
	}
}

func TestControllerWithImageSurface(t *testing.T) {
	surface := NewImageSurface(64, 64, "")
	ch := channel.NewMemory()
	sub := NewSubmitter(ch, 100, "")
	c := NewController(Config{Submit: sub.Func(), Clock: &stepClock{}}, surface)

	c.PointerDown(stroke.Point{X: 10, Y: 10})
	c.PointerMove(stroke.Point{X: 40, Y: 40})
	if _, _, _, a := surface.Image().At(25, 25).RGBA(); a == 0 {
		t.Error("expected ink on the surface")
	}
	c.PointerUp()
	sub.Wait()
	if recs, _ := ch.FetchRecent(context.Background(), 10); len(recs) != 1 {
		t.Errorf("FetchRecent() = %d records, want 1", len(recs))
	}
	if err := surface.SavePNG(filepath.Join(t.TempDir(), "canvas.png")); err != nil {
		t.Fatal(err)
	}
}

func TestImageSurface_Fade(t *testing.T) {
	now := time.Unix(100, 0)
	s := NewImageSurface(8, 8, "#000000")
	s.now = func() time.Time { return now }
	s.Line(stroke.Point{X: 1, Y: 1}, stroke.Point{X: 6, Y: 6})
	if s.Opacity() != 1 {
		t.Errorf("Opacity() = %v, want 1", s.Opacity())
	}
	s.Fade(600 * time.Millisecond)
	now = now.Add(300 * time.Millisecond)
	if o := s.Opacity(); o < 0.49 || o > 0.51 {
		t.Errorf("Opacity() mid fade = %v, want 0.5", o)
	}
	now = now.Add(time.Second)
	if s.Opacity() != 0 {
		t.Errorf("Opacity() after fade = %v, want 0", s.Opacity())
	}
	if _, _, _, a := s.Image().At(3, 3).RGBA(); a != 0 {
		t.Errorf("faded image alpha = %d, want 0", a)
	}
	s.Reset()
	if s.Opacity() != 1 {
		t.Errorf("Opacity() after Reset = %v, want 1", s.Opacity())
	}
	if _, _, _, a := s.Image().At(3, 3).RGBA(); a != 0 {
		t.Errorf("Reset left ink behind")
	}
}
