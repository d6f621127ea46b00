package presentation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Fetch downloads the server's current document from /presentation/latest.
func Fetch(ctx context.Context, client *http.Client, baseUrl *url.URL) (*State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseUrl.JoinPath("presentation", "latest").String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body from get: %w", err)
	}
	s, err := Load(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("established presentation doc", "heads", s.doc.Heads(), "dark", s.Dark())
	return s, nil
}

// Client keeps a State in sync with the server, reconnecting every RetryInterval after a
// dropped connection.
type Client struct {
	State         *State
	BaseUrl       *url.URL
	Dialer        *websocket.Dialer
	RetryInterval time.Duration
}

func (c *Client) Run(ctx context.Context) {
	retry := c.RetryInterval
	if retry <= 0 {
		retry = time.Second
	}
	t := time.NewTicker(retry)
	defer t.Stop()
	for {
		if err := c.connectAndSync(ctx); err != nil {
			slog.Error("failed to sync presentation", "err", err)
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			slog.Info("stopping presentation sync")
			return
		}
	}
}

func (c *Client) connectAndSync(ctx context.Context) error {
	u := c.BaseUrl.JoinPath("presentation", "sync")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()
	if err := Sync(ctx, conn, c.State.NewSyncState(), c.State.Check); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}
	return nil
}
