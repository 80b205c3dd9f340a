package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ClientConn is the browser side of a relay session.
//
// ReadMessage blocks until a message arrives or ctx is done, in which case
// it returns ctx.Err(). WriteMessage is only ever called by one goroutine at
// a time. Close is owned by the transport; the relay never calls it.
type ClientConn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(data []byte) error
}

// clientWriter serializes JSON writes to a ClientConn. Both pump tasks and
// the tool processor write through it. After the first failed write the
// socket is treated as unusable and later writes fail fast.
type clientWriter struct {
	conn ClientConn

	mu     sync.Mutex
	broken error
}

func newClientWriter(conn ClientConn) *clientWriter {
	return &clientWriter{conn: conn}
}

func (w *clientWriter) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode client message: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken != nil {
		return w.broken
	}
	if err := w.conn.WriteMessage(data); err != nil {
		w.broken = fmt.Errorf("%w: %v", ErrClientGone, err)
		return w.broken
	}
	return nil
}

func (w *clientWriter) usable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.broken == nil
}
