package presentation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/gorilla/websocket"
)

// SyncInterval is how often an idle sync connection offers its latest changes.
const SyncInterval = time.Second

func readAndReceiveMessage(conn *websocket.Conn, syncState *automerge.SyncState) (bool, error) {
	mt, p, err := conn.ReadMessage()
	if err != nil {
		return false, fmt.Errorf("failed to read message: %w", err)
	}
	if mt != websocket.BinaryMessage {
		return false, nil
	}
	if _, err := syncState.ReceiveMessage(p); err != nil {
		return false, fmt.Errorf("failed to receive message: %w", err)
	}
	return true, nil
}

func generateAndWriteMessage(conn *websocket.Conn, syncState *automerge.SyncState) (bool, error) {
	if msg, valid := syncState.GenerateMessage(); msg != nil {
		if err := conn.WriteMessage(websocket.BinaryMessage, msg.Bytes()); err != nil {
			return false, fmt.Errorf("failed to write message: %w", err)
		}
		return valid, nil
	}
	return false, nil
}

func flush(conn *websocket.Conn, syncState *automerge.SyncState) error {
	for {
		ok, err := generateAndWriteMessage(conn, syncState)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// Sync runs the automerge sync protocol over conn until ctx is done or the connection
// fails. Outgoing changes are flushed after every received message and on every
// SyncInterval tick; onReceive, if set, is called after each applied message.
func Sync(ctx context.Context, conn *websocket.Conn, syncState *automerge.SyncState, onReceive func()) error {
	slog.Debug("syncing presentation", "remote", conn.RemoteAddr())

	kick := make(chan struct{}, 1)
	readerDone := make(chan struct{})
	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(readerDone)
		defer conn.Close()
		for {
			applied, err := readAndReceiveMessage(conn, syncState)
			if err != nil {
				if ctx.Err() == nil {
					slog.Debug("sync reader stopped", "err", err)
				}
				return
			}
			if applied {
				if onReceive != nil {
					onReceive()
				}
				select {
				case kick <- struct{}{}:
				default:
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()

		if err := flush(conn, syncState); err != nil {
			slog.Error(err.Error())
			return
		}

		t := time.NewTicker(SyncInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
			case <-kick:
			case <-readerDone:
				return
			case <-ctx.Done():
				return
			}
			if err := flush(conn, syncState); err != nil {
				if ctx.Err() == nil {
					slog.Debug("sync writer stopped", "err", err)
				}
				return
			}
		}
	}()

	wg.Wait()
	return nil
}
