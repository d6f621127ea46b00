package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/channel"
	"github.com/astromechza/stroke-overlay/pkg/export"
	"github.com/astromechza/stroke-overlay/pkg/placement"
	"github.com/astromechza/stroke-overlay/pkg/presentation"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
	"github.com/astromechza/stroke-overlay/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	addrVar := flag.String("addr", envOr("OVERLAY_ADDR", "127.0.0.1:8080"), "the server address or url")
	limitVar := flag.Int("limit", 500, "how many recent strokes to export")
	docVar := flag.String("doc", "", "inspect a dumped presentation document instead of exporting strokes")
	flag.Parse()

	if *docVar != "" {
		return inspect(*docVar)
	}
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the pdf to write")
	}

	baseUrl, err := parseBase(*addrVar)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dark := presentation.DefaultDark
	if state, err := presentation.Fetch(ctx, http.DefaultClient, baseUrl); err != nil {
		slog.Error("failed to fetch presentation, using default theme", "err", err)
	} else {
		dark = state.Dark()
	}

	recs, err := channel.NewRemote(baseUrl).FetchRecent(ctx, *limitVar)
	if err != nil {
		return err
	}
	strokes := make([]stroke.Stroke, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		st, err := stroke.DecodeRecord(recs[i], stroke.DefaultQuant)
		if err != nil {
			slog.Error("skipping malformed stroke", "id", recs[i].ID, "err", err)
			continue
		}
		strokes = append(strokes, st)
	}

	if err := export.WritePDFFile(flag.Arg(0), strokes, placement.For(dark)); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	slog.Info("exported", "strokes", len(strokes), "path", flag.Arg(0))
	return nil
}

func inspect(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	state, err := presentation.Load(raw)
	if err != nil {
		return err
	}
	doc := state.Doc()
	slog.Info("loaded doc", "dark", state.Dark(), "heads", doc.Heads())

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	for i, change := range changes {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", change.Hash(), "actor", change.ActorID(), "dep", change.Dependencies())
	}
	svgPath, err := viz.RenderToTemp(doc, []interface{}{presentation.DarkKey})
	if err != nil {
		return err
	}
	slog.Info("rendered", "path", "file://"+svgPath)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBase(addr string) (*url.URL, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse address: %w", err)
	}
	return u, nil
}
