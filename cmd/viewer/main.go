package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/channel"
	"github.com/astromechza/stroke-overlay/pkg/discovery"
	"github.com/astromechza/stroke-overlay/pkg/overlay"
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
	addrVar := flag.String("addr", envOr("OVERLAY_ADDR", "127.0.0.1:8080"), "the server address or url")
	discoverVar := flag.Bool("discover", false, "find the server on the local network instead of using -addr")
	frameVar := flag.String("frame", "overlay.png", "png file rewritten after every change, empty to disable")
	widthVar := flag.Int("width", 1280, "frame width")
	heightVar := flag.Int("height", 720, "frame height")
	ttlVar := flag.Duration("ttl", overlay.DefaultTTL, "local display lifetime, negative to wait for server deletes")
	quantVar := flag.Int("quant", stroke.DefaultQuant, "quantization factor of received points")
	limitVar := flag.Int("limit", overlay.DefaultLimit, "backlog size fetched on connect")
	journalVar := flag.String("journal", "", "write the lifecycle journal as json to this file on exit")
	clearVar := flag.Bool("clear-on-exit", false, "delete every visible stroke from the server on exit")
	debugVar := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	level := slog.LevelInfo
	if *debugVar {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := *addrVar
	if *discoverVar {
		found, err := discovery.Browse(ctx, 3*time.Second)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return errors.New("no server found on the local network")
		}
		addr = found[0]
		slog.Info("discovered server", "addr", addr, "candidates", len(found))
	}
	baseUrl, err := parseBase(addr)
	if err != nil {
		return err
	}

	state, err := presentation.Fetch(ctx, http.DefaultClient, baseUrl)
	if err != nil {
		slog.Error("failed to fetch presentation, using defaults", "err", err)
		state = presentation.New()
	}
	slog.Info("established presentation", "dark", state.Dark())

	journal := &overlay.Journal{Limit: 10000}
	render := func(items []overlay.Item) {
		slog.Debug("render", "items", len(items))
		if *frameVar == "" {
			return
		}
		if err := overlay.SaveFrame(*frameVar, items, *widthVar, *heightVar, overlay.FrameOptions{}); err != nil {
			slog.Error("failed to render frame", "err", err)
		}
	}
	m := overlay.NewManager(overlay.Config{
		TTL:     *ttlVar,
		Palette: placement.For(state.Dark()),
		Journal: journal,
	}, render)
	themeSub := state.Subscribe(func(dark bool) {
		slog.Info("theme changed", "dark", dark)
		m.SetPalette(placement.For(dark))
	})
	defer themeSub.Unsubscribe()

	remote := channel.NewRemote(baseUrl)
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		remote.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		(&presentation.Client{State: state, BaseUrl: baseUrl}).Run(ctx)
	}()

	session := overlay.StartSession(ctx, remote, m, overlay.SessionConfig{Quant: *quantVar, Limit: *limitVar})

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)

	if *clearVar {
		clearCtx, clearCancel := context.WithTimeout(context.Background(), 10*time.Second)
		for _, id := range session.Alive() {
			remote.DeleteByID(clearCtx, id)
		}
		clearCancel()
	}
	session.Close()
	cancel()
	wg.Wait()

	entries := journal.Entries()
	if *journalVar != "" {
		if err := journal.WriteFile(*journalVar); err != nil {
			slog.Error("failed to write journal", "err", err)
		} else {
			slog.Info("wrote journal", "path", *journalVar, "entries", len(entries))
		}
	}
	if svgPath, err := viz.RenderJournalToTemp(entries); err != nil {
		slog.Error("failed to render journal", "err", err)
	} else {
		slog.Info("rendered journal", "path", "file://"+svgPath)
	}
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
