package relay

import (
	"context"
	"sync"

	"github.com/codefionn/livecast/internal/upstream"
)

// toolQueue is an unbounded FIFO of tool call batches. Put never blocks,
// so the outbound pump can keep forwarding model output while tools run.
type toolQueue struct {
	mu     sync.Mutex
	items  []upstream.ToolCall
	signal chan struct{}
}

func newToolQueue() *toolQueue {
	return &toolQueue{signal: make(chan struct{}, 1)}
}

// Put appends a batch and returns the new depth.
func (q *toolQueue) Put(batch upstream.ToolCall) int {
	q.mu.Lock()
	q.items = append(q.items, batch)
	n := len(q.items)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return n
}

// Get removes the oldest batch, waiting until one is available or ctx is
// done.
func (q *toolQueue) Get(ctx context.Context) (upstream.ToolCall, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			batch := q.items[0]
			q.items[0] = upstream.ToolCall{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return batch, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return upstream.ToolCall{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of pending batches.
func (q *toolQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain discards all pending batches and returns how many were dropped.
func (q *toolQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}
