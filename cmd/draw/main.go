package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astromechza/stroke-overlay/pkg/canvas"
	"github.com/astromechza/stroke-overlay/pkg/channel"
	"github.com/astromechza/stroke-overlay/pkg/placement"
	"github.com/astromechza/stroke-overlay/pkg/presentation"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", envOr("OVERLAY_ADDR", "127.0.0.1:8080"), "the server address or url")
	inputVar := flag.String("input", "-", "json-lines input script, - for stdin")
	ownerVar := flag.String("owner", uuid.NewString(), "owner id attached to sent strokes")
	themeVar := flag.String("theme", "", "set the shared theme before drawing: dark, light or toggle")
	pngVar := flag.String("png", "", "save the local canvas to this file after the script")
	quantVar := flag.Int("quant", stroke.DefaultQuant, "quantization factor for sent points")
	minDistanceVar := flag.Float64("min-distance", stroke.DefaultMinDistance, "smallest gap between recorded points")
	settleVar := flag.Duration("settle", 2*time.Second, "how long to stay connected after the script so changes propagate")
	debugVar := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	level := slog.LevelInfo
	if *debugVar {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	baseUrl, err := parseBase(*addrVar)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if *inputVar != "-" {
		f, err := os.Open(*inputVar)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		in = f
	}
	steps, err := readScript(in)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := new(sync.WaitGroup)

	state, err := presentation.Fetch(ctx, http.DefaultClient, baseUrl)
	if err != nil {
		return err
	}
	if *themeVar != "" {
		if err := applyTheme(state, *themeVar); err != nil {
			return err
		}
		slog.Info("theme set", "dark", state.Dark())
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		(&presentation.Client{State: state, BaseUrl: baseUrl}).Run(ctx)
	}()

	surface := canvas.NewImageSurface(1280, 720, placement.For(state.Dark()).Color(*ownerVar))
	themeSub := state.Subscribe(func(dark bool) {
		surface.SetInk(placement.For(dark).Color(*ownerVar))
	})
	defer themeSub.Unsubscribe()

	submitter := canvas.NewSubmitter(channel.NewRemote(baseUrl), *quantVar, *ownerVar)
	submitter.OnSent = func(id string, err error) {
		if err != nil {
			slog.Error("failed to send stroke", "err", err)
			return
		}
		slog.Info("sent stroke", "id", id)
	}
	controller := canvas.NewController(canvas.Config{
		Quant:       *quantVar,
		MinDistance: *minDistanceVar,
		Submit:      submitter.Func(),
	}, surface)
	defer controller.Close()

	replay(controller, steps, time.Sleep)
	submitter.Wait()
	if *pngVar != "" {
		if err := surface.SavePNG(*pngVar); err != nil {
			slog.Error("failed to save canvas", "err", err)
		}
	}

	time.Sleep(*settleVar)
	cancel()
	wg.Wait()
	return nil
}

func applyTheme(state *presentation.State, theme string) error {
	switch theme {
	case "dark":
		return state.SetDark(true)
	case "light":
		return state.SetDark(false)
	case "toggle":
		_, err := state.Toggle()
		return err
	default:
		return fmt.Errorf("unknown theme %q", theme)
	}
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
