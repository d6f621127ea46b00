package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/canvas"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// step is one line of an input script, for example {"type":"pointerdown","x":10,"y":20} or
// {"type":"wait","ms":50}.
type step struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Ms   int     `json:"ms"`
}

func readScript(r io.Reader) ([]step, error) {
	var out []step
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var s step
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("failed to parse line %d: %w", line, err)
		}
		switch s.Type {
		case "pointerdown", "pointermove", "pointerup", "pointercancel",
			"touchstart", "touchmove", "touchend", "wait":
		default:
			return nil, fmt.Errorf("unknown step type %q on line %d", s.Type, line)
		}
		out = append(out, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return out, nil
}

// replay feeds steps into c, sleeping through waits.
func replay(c *canvas.Controller, steps []step, sleep func(time.Duration)) {
	for _, s := range steps {
		p := stroke.Point{X: s.X, Y: s.Y}
		switch s.Type {
		case "pointerdown":
			c.PointerDown(p)
		case "pointermove":
			c.PointerMove(p)
		case "pointerup":
			c.PointerUp()
		case "pointercancel":
			c.PointerCancel()
		case "touchstart":
			c.TouchStart(p)
		case "touchmove":
			c.TouchMove(p)
		case "touchend":
			c.TouchEnd()
		case "wait":
			sleep(time.Duration(s.Ms) * time.Millisecond)
		}
	}
}
