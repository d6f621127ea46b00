// Package server is the stroke substrate: an HTTP API over a Store, a websocket event
// stream fed from a Bus, the retention reaper, and the shared presentation document.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/astromechza/stroke-overlay/pkg/bus"
	"github.com/astromechza/stroke-overlay/pkg/presentation"
	"github.com/astromechza/stroke-overlay/pkg/store"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// PresentationDoc is the store id of the shared presentation document.
const PresentationDoc = "presentation"

type Config struct {
	// Retention is how long a stroke row lives before the reaper deletes it. Negative
	// disables reaping.
	Retention time.Duration
	// ReapInterval is how often the reaper looks for expired rows.
	ReapInterval time.Duration
	// BackupInterval is how often the presentation document is written back to the store.
	BackupInterval time.Duration
	Now            func() time.Time
}

func (c *Config) defaults() {
	if c.Retention == 0 {
		c.Retention = 5 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Second
	}
	if c.BackupInterval <= 0 {
		c.BackupInterval = 5 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type Server struct {
	cfg          Config
	store        store.Store
	bus          bus.Bus
	presentation *presentation.State
	upgrader     websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	backedUpAt string
}

// New loads the presentation document from st, creating it on first start.
func New(ctx context.Context, st store.Store, b bus.Bus, cfg Config) (*Server, error) {
	cfg.defaults()
	state, err := loadPresentation(ctx, st)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:          cfg,
		store:        st,
		bus:          b,
		presentation: state,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.backedUpAt = headsOf(state)
	return s, nil
}

func loadPresentation(ctx context.Context, st store.Store) (*presentation.State, error) {
	raw, err := st.LoadDocument(ctx, PresentationDoc)
	if errors.Is(err, store.ErrNotFound) {
		state := presentation.New()
		if err := st.SaveDocument(ctx, PresentationDoc, state.Save()); err != nil {
			return nil, err
		}
		slog.Info("created presentation document")
		return state, nil
	} else if err != nil {
		return nil, err
	}
	return presentation.Load(raw)
}

// Presentation is the server's copy of the shared document.
func (s *Server) Presentation() *presentation.State {
	return s.presentation
}

// Handler returns the routed API with access logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodPost).Path("/strokes").HandlerFunc(s.createStroke)
	r.Methods(http.MethodGet).Path("/strokes").HandlerFunc(s.listStrokes)
	r.Methods(http.MethodDelete).Path("/strokes/{id}").HandlerFunc(s.deleteStroke)
	r.Methods(http.MethodGet).Path("/events").HandlerFunc(s.streamEvents)
	r.Methods(http.MethodGet).Path("/presentation/latest").HandlerFunc(s.getPresentation)
	r.Methods(http.MethodGet).Path("/presentation/sync").HandlerFunc(s.syncPresentation)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	})
	return r
}

// Run reaps expired strokes and backs up the presentation document until ctx is done,
// then makes a final backup.
func (s *Server) Run(ctx context.Context) {
	reap := time.NewTicker(s.cfg.ReapInterval)
	defer reap.Stop()
	backup := time.NewTicker(s.cfg.BackupInterval)
	defer backup.Stop()
	for {
		select {
		case <-reap.C:
			if _, err := s.Reap(ctx); err != nil && ctx.Err() == nil {
				slog.Error("failed to reap strokes", "err", err)
			}
		case <-backup.C:
			if err := s.Backup(ctx); err != nil && ctx.Err() == nil {
				slog.Error("failed to backup doc in database", "err", err)
			}
		case <-ctx.Done():
			if err := s.Backup(context.Background()); err != nil {
				slog.Error("failed to backup doc in database", "err", err)
			}
			return
		}
	}
}

// Reap deletes every stroke older than the retention and publishes a delete event for
// each one.
func (s *Server) Reap(ctx context.Context) (int, error) {
	if s.cfg.Retention < 0 {
		return 0, nil
	}
	ids, err := s.store.DeleteOlderThan(ctx, s.cfg.Now().Add(-s.cfg.Retention))
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.publish(ctx, stroke.DeleteEvent(id))
	}
	if len(ids) > 0 {
		slog.Debug("reaped strokes", "count", len(ids))
	}
	return len(ids), nil
}

// Backup writes the presentation document to the store if it changed since the last
// backup.
func (s *Server) Backup(ctx context.Context) error {
	heads := headsOf(s.presentation)
	s.mu.Lock()
	defer s.mu.Unlock()
	if heads == s.backedUpAt {
		return nil
	}
	if err := s.store.SaveDocument(ctx, PresentationDoc, s.presentation.Save()); err != nil {
		return err
	}
	s.backedUpAt = heads
	slog.Info("backed up", "doc", PresentationDoc, "heads", heads)
	return nil
}

// Close ends every open websocket session.
func (s *Server) Close() {
	s.cancel()
}

func headsOf(state *presentation.State) string {
	var out string
	for _, h := range state.Doc().Heads() {
		out += h.String()
	}
	return out
}
