package canvas

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/astromechza/stroke-overlay/pkg/channel"
	"github.com/astromechza/stroke-overlay/pkg/stroke"
)

// Submitter encodes finished paths and sends them on a channel without blocking the caller.
// Failed sends are logged once and dropped.
type Submitter struct {
	ch      channel.Channel
	quant   int
	ownerID string

	// Timeout bounds each send.
	Timeout time.Duration
	// OnSent, when set, is called after every send attempt.
	OnSent func(id string, err error)

	wg sync.WaitGroup
}

func NewSubmitter(ch channel.Channel, quant int, ownerID string) *Submitter {
	if quant <= 0 {
		quant = stroke.DefaultQuant
	}
	return &Submitter{ch: ch, quant: quant, ownerID: ownerID, Timeout: 10 * time.Second}
}

// Submit rejects an empty path with stroke.ErrEmptyStroke, otherwise it starts the send in
// the background and returns immediately.
func (s *Submitter) Submit(path []stroke.Point) error {
	payload := stroke.Encode(path, s.quant)
	if err := payload.Validate(); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
		defer cancel()
		id, err := s.ch.Send(ctx, payload, s.ownerID)
		if err == nil {
			slog.Debug("stroke sent", "id", id, "points", len(payload.P))
		}
		if s.OnSent != nil {
			s.OnSent(id, err)
		}
	}()
	return nil
}

// Func adapts Submit to Config.Submit, logging local rejections.
func (s *Submitter) Func() func([]stroke.Point) {
	return func(path []stroke.Point) {
		if err := s.Submit(path); err != nil {
			slog.Error("failed to submit stroke", "err", err)
		}
	}
}

// Wait blocks until every started send has finished.
func (s *Submitter) Wait() {
	s.wg.Wait()
}
