package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/astromechza/stroke-overlay/pkg/bus"
	"github.com/astromechza/stroke-overlay/pkg/discovery"
	"github.com/astromechza/stroke-overlay/pkg/presentation"
	"github.com/astromechza/stroke-overlay/pkg/server"
	"github.com/astromechza/stroke-overlay/pkg/store"
	"github.com/astromechza/stroke-overlay/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mainInner() error {
	addrVar := flag.String("addr", envOr("OVERLAY_ADDR", "localhost:8080"), "the address to listen on")
	dbVar := flag.String("db", envOr("DATABASE_URL", "overlay.sqlite3"), "sqlite path or postgres:// url")
	redisVar := flag.String("redis", os.Getenv("REDIS_ADDR"), "redis address for fan-out between replicas, empty for in-process")
	retentionVar := flag.Duration("retention", 5*time.Second, "how long strokes live before they are reaped, negative to keep them")
	mdnsVar := flag.Bool("mdns", false, "advertise the server on the local network")
	debugVar := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	level := slog.LevelInfo
	if *debugVar {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("Opening database", "dsn", *dbVar)
	st, err := store.Open(ctx, *dbVar)
	if err != nil {
		return err
	}
	defer st.Close()

	var b bus.Bus
	if *redisVar != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisVar})
		defer rdb.Close()
		if b, err = bus.NewRedis(ctx, rdb, bus.DefaultChannel); err != nil {
			return err
		}
		slog.Info("Using redis bus", "addr", *redisVar)
	} else {
		b = bus.NewHub()
	}
	defer b.Close()

	s, err := server.New(ctx, st, b, server.Config{Retention: *retentionVar})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", *addrVar)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	slog.Info("Listening", "addr", listener.Addr().String())

	if *mdnsVar {
		_, rawPort, _ := net.SplitHostPort(listener.Addr().String())
		port, _ := strconv.Atoi(rawPort)
		advert, err := discovery.Advertise(port)
		if err != nil {
			return err
		}
		defer advert.Shutdown()
		slog.Info("Advertising", "service", discovery.ServiceType, "port", port)
	}

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	httpServer := &http.Server{Handler: s.Handler()}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()
	s.Close()
	_ = httpServer.Close()

	wg.Wait()

	dump(s.Presentation())
	return nil
}

// dump writes the presentation document and its history next to each other in the temp dir.
func dump(state *presentation.State) {
	doc := state.Doc()
	tf := filepath.Join(os.TempDir(), doc.ActorID()+".automerge")
	if err := os.WriteFile(tf, state.Save(), 0o644); err != nil {
		slog.Error("failed to dump", "doc", server.PresentationDoc, "err", err)
	} else {
		slog.Info("dumped", "doc", server.PresentationDoc, "path", tf)
	}
	if svgPath, err := viz.RenderToTemp(doc, []interface{}{presentation.DarkKey}); err != nil {
		slog.Error("failed to render", "doc", server.PresentationDoc, "err", err)
	} else {
		slog.Info("rendered", "doc", server.PresentationDoc, "path", "file://"+svgPath)
	}
}
