package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/codefionn/livecast/internal/logger"
	"github.com/codefionn/livecast/internal/session"
	"github.com/codefionn/livecast/internal/upstream"
	"github.com/stretchr/testify/require"
)

// recorder keeps one ordered log across the fake client and upstream.
type recorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorder) add(entry string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) index(entry string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

type readResult struct {
	data []byte
	err  error
}

type fakeClient struct {
	reads chan readResult
	rec   *recorder

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	seenCh   map[string]chan struct{}
}

func newFakeClient(rec *recorder) *fakeClient {
	return &fakeClient{
		reads:  make(chan readResult, 64),
		rec:    rec,
		seenCh: make(map[string]chan struct{}),
	}
}

func (c *fakeClient) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-c.reads:
		return r.data, r.err
	}
}

func (c *fakeClient) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, data)

	typ := messageType(data)
	c.rec.add("client:" + typ)
	ch := c.seenLocked(typ)
	select {
	case <-ch:
	default:
		close(ch)
	}
	return nil
}

func (c *fakeClient) seenLocked(typ string) chan struct{} {
	ch, ok := c.seenCh[typ]
	if !ok {
		ch = make(chan struct{})
		c.seenCh[typ] = ch
	}
	return ch
}

// seen is closed once a message of typ has been written.
func (c *fakeClient) seen(typ string) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seenLocked(typ)
}

func (c *fakeClient) send(t *testing.T, typ, data string) {
	t.Helper()
	raw, err := json.Marshal(ClientMessage{Type: typ, Data: data})
	require.NoError(t, err)
	c.reads <- readResult{data: raw}
}

func (c *fakeClient) fail(err error) {
	c.reads <- readResult{err: err}
}

func (c *fakeClient) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.written))
	for _, raw := range c.written {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeClient) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.written))
	for _, raw := range c.written {
		out = append(out, messageType(raw))
	}
	return out
}

func messageType(raw []byte) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "invalid"
	}
	if typ, ok := m["type"].(string); ok {
		return typ
	}
	if _, ok := m["ready"]; ok {
		return "ready"
	}
	return "unknown"
}

type sentInput struct {
	input     upstream.Input
	endOfTurn bool
}

type fakeUpstream struct {
	events  chan upstream.Event
	recvErr chan error
	rec     *recorder

	mu        sync.Mutex
	sent      []sentInput
	closes    int
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeUpstream(rec *recorder) *fakeUpstream {
	return &fakeUpstream{
		events:  make(chan upstream.Event, 64),
		recvErr: make(chan error, 1),
		rec:     rec,
		closed:  make(chan struct{}),
	}
}

func (u *fakeUpstream) Send(ctx context.Context, in upstream.Input, endOfTurn bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sent = append(u.sent, sentInput{input: in, endOfTurn: endOfTurn})
	u.rec.add("upstream:" + inputKind(in))
	return nil
}

func (u *fakeUpstream) Receive(ctx context.Context) (upstream.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-u.events:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	case err := <-u.recvErr:
		return nil, err
	case <-u.closed:
		return nil, io.EOF
	}
}

func (u *fakeUpstream) Close() error {
	u.mu.Lock()
	u.closes++
	u.mu.Unlock()
	u.closeOnce.Do(func() { close(u.closed) })
	return nil
}

func (u *fakeUpstream) sentInputs() []sentInput {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]sentInput(nil), u.sent...)
}

func (u *fakeUpstream) closeCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closes
}

func inputKind(in upstream.Input) string {
	switch in := in.(type) {
	case upstream.Audio:
		return "audio"
	case upstream.Image:
		return "image"
	case upstream.Text:
		return "text:" + in.Text
	case upstream.ToolResponse:
		return "tool_response"
	default:
		return fmt.Sprintf("%T", in)
	}
}

type harness struct {
	manager  *Manager
	client   *fakeClient
	upstream *fakeUpstream
	rec      *recorder
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	rec := &recorder{}
	h := &harness{
		client:   newFakeClient(rec),
		upstream: newFakeUpstream(rec),
		rec:      rec,
	}
	if opts.Factory == nil {
		opts.Factory = upstream.FactoryFunc(func(ctx context.Context) (upstream.Session, error) {
			return h.upstream, nil
		})
	}
	if opts.Registry == nil {
		opts.Registry = session.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithWriter(logger.LevelDebug, io.Discard, "test")
	}
	h.manager = NewManager(opts)
	return h
}

// serve runs Serve in the background and returns its result channel.
func (h *harness) serve(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- h.manager.Serve(ctx, h.client)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func waitChan(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
