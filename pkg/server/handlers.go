package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/astromechza/stroke-overlay/pkg/presentation"
	"github.com/astromechza/stroke-overlay/pkg/store"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxBody    = 1 << 20
)

type createRequest struct {
	Data    json.RawMessage `json:"data"`
	OwnerID string          `json:"owner_id"`
}

type createResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(writer http.ResponseWriter, status int, v any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *Server) createStroke(writer http.ResponseWriter, request *http.Request) {
	var body createRequest
	if err := json.NewDecoder(http.MaxBytesReader(writer, request.Body, maxBody)).Decode(&body); err != nil {
		writeJSON(writer, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}
	payload, err := stroke.ParsePayload(body.Data)
	if err == nil {
		err = payload.Validate()
	}
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	rec, err := stroke.NewRecord(uuid.NewString(), body.OwnerID, s.cfg.Now().UTC(), payload)
	if err != nil {
		slog.Error("failed to build record", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := s.store.InsertStroke(request.Context(), rec); err != nil {
		slog.Error("failed to insert stroke", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.publish(request.Context(), stroke.InsertEvent(rec))
	writeJSON(writer, http.StatusCreated, createResponse{ID: rec.ID})
}

func (s *Server) listStrokes(writer http.ResponseWriter, request *http.Request) {
	limit := 0
	if raw := request.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(writer, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = v
	}
	recs, err := s.store.RecentStrokes(request.Context(), limit)
	if err != nil {
		slog.Error("failed to list strokes", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(writer, http.StatusOK, recs)
}

func (s *Server) deleteStroke(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["id"]
	if err := s.store.DeleteStroke(request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("failed to delete stroke", "id", id, "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.publish(request.Context(), stroke.DeleteEvent(id))
	writer.WriteHeader(http.StatusNoContent)
}

// publish logs bus failures; the row change has already happened and subscribers that miss
// it catch up on their next resync.
func (s *Server) publish(ctx context.Context, ev stroke.Event) {
	if err := s.bus.Publish(ctx, ev); err != nil {
		slog.Error("failed to publish event", "type", ev.Type, "err", err)
	}
}

func (s *Server) streamEvents(writer http.ResponseWriter, request *http.Request) {
	sub := s.bus.Subscribe()
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	// the client never sends anything meaningful; reading keeps control frames flowing and
	// tells us when it goes away
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "resync"), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("event stream closed", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) getPresentation(writer http.ResponseWriter, _ *http.Request) {
	fork, err := s.presentation.Doc().Fork()
	if err != nil {
		slog.Error("failed to fork", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Add("Content-Type", "application/octet-stream")
	if _, err := writer.Write(fork.Save()); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *Server) syncPresentation(writer http.ResponseWriter, request *http.Request) {
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if err := presentation.Sync(ctx, conn, s.presentation.NewSyncState(), s.presentation.Check); err != nil {
		slog.Error("failed to sync", "err", err)
	}
}
