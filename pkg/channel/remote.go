package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// Remote talks to the overlay server: plain HTTP for send, fetch and delete, and a
// websocket for the event stream. Call Run to keep the stream connected.
type Remote struct {
	events

	baseUrl *url.URL
	client  *http.Client
	dialer  *websocket.Dialer

	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff time.Duration
}

var _ Channel = (*Remote)(nil)

func NewRemote(baseUrl *url.URL) *Remote {
	return &Remote{
		baseUrl:    baseUrl,
		client:     &http.Client{Timeout: 10 * time.Second},
		dialer:     websocket.DefaultDialer,
		MaxBackoff: 10 * time.Second,
	}
}

type sendRequest struct {
	Data    stroke.Payload `json:"data"`
	OwnerID string         `json:"owner_id,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (r *Remote) Send(ctx context.Context, payload stroke.Payload, ownerID string) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", err
	}
	id, err := r.send(ctx, payload, ownerID)
	if err != nil {
		slog.Error("failed to send stroke", "err", err)
		return "", err
	}
	return id, nil
}

func (r *Remote) send(ctx context.Context, payload stroke.Payload, ownerID string) (string, error) {
	body, err := json.Marshal(sendRequest{Data: payload, OwnerID: ownerID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal stroke: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseUrl.JoinPath("strokes").String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to post stroke: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("server returned no id")
	}
	return out.ID, nil
}

func (r *Remote) DeleteByID(ctx context.Context, id string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.baseUrl.JoinPath("strokes", id).String(), nil)
	if err != nil {
		slog.Error("failed to build delete", "id", id, "err", err)
		return
	}
	resp, err := r.client.Do(req)
	if err != nil {
		slog.Error("failed to delete stroke", "id", id, "err", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch resp.StatusCode {
	case http.StatusNoContent:
	case http.StatusNotFound:
		slog.Debug("stroke already gone", "id", id)
	default:
		slog.Error("failed to delete stroke", "id", id, "status", resp.StatusCode)
	}
}

func (r *Remote) FetchRecent(ctx context.Context, limit int) ([]stroke.Record, error) {
	u := r.baseUrl.JoinPath("strokes")
	if limit > 0 {
		u.RawQuery = url.Values{"limit": []string{strconv.Itoa(limit)}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get backlog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var out []stroke.Record
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode backlog: %w", err)
	}
	return out, nil
}

// Run keeps the event stream connected until ctx is done, backing off between failed
// attempts. Every successful connection is announced to resync subscribers because events
// may have been missed while disconnected.
func (r *Remote) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = r.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		err := r.connectAndStream(ctx, b.Reset)
		if ctx.Err() != nil {
			slog.Info("stopping event stream")
			return
		}
		wait := b.NextBackOff()
		slog.Error("event stream interrupted", "err", err, "retry_in", wait)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			slog.Info("stopping event stream")
			return
		}
	}
}

func (r *Remote) connectAndStream(ctx context.Context, connected func()) error {
	u := r.baseUrl.JoinPath("events")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, _, err := r.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	slog.Info("event stream connected", "url", u.String())
	connected()
	r.resyncs.emit(struct{}{})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		var ev stroke.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			slog.Error("skipping malformed event", "err", err)
			continue
		}
		r.dispatch(ev)
	}
}

func (r *Remote) dispatch(ev stroke.Event) {
	switch ev.Type {
	case stroke.EventInsert:
		if ev.Record == nil {
			slog.Error("insert event without record")
			return
		}
		r.inserts.emit(*ev.Record)
	case stroke.EventDelete:
		if ev.ID == "" {
			slog.Error("delete event without id")
			return
		}
		r.deletes.emit(ev.ID)
	default:
		slog.Debug("ignoring event", "type", ev.Type)
	}
}
