package viz

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/overlay"
	"github.com/astromechza/stroke-overlay/pkg/presentation"
)

func TestRenderJournalToSvg(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []overlay.Transition{
		{At: at, ID: "stroke-one", From: overlay.Absent, To: overlay.Visible, Cause: "inserted"},
		{At: at.Add(time.Second), ID: "two", From: overlay.Absent, To: overlay.Visible, Cause: "inserted"},
		{At: at.Add(4 * time.Second), ID: "stroke-one", From: overlay.Visible, To: overlay.Expired, Cause: "ttl"},
		{At: at.Add(4 * time.Second), ID: "two", From: overlay.Visible, To: overlay.Removed, Cause: "deleted"},
	}
	out := filepath.Join(t.TempDir(), "journal.svg")
	if err := RenderJournalToSvg(entries, out); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<svg", "ttl +4s", "deleted +4s"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("svg does not contain %q", want)
		}
	}
}

func TestRenderJournalEmpty(t *testing.T) {
	path, err := RenderJournalToTemp(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(path)
	if _, err := os.Stat(path); err != nil {
		t.Error(err)
	}
}

func TestRenderDocToSvg(t *testing.T) {
	state := presentation.New()
	if err := state.SetDark(false); err != nil {
		t.Fatal(err)
	}
	if err := state.SetDark(true); err != nil {
		t.Fatal(err)
	}
	path, err := RenderToTemp(state.Doc(), []interface{}{presentation.DarkKey})
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "false") || !strings.Contains(string(raw), "true") {
		t.Error("svg does not show both values of the flag")
	}
}
