// Package session tracks per-connection relay state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/codefionn/livecast/internal/upstream"
)

// ToolExecution is a handle to an in-flight tool call.
type ToolExecution struct {
	Name      string
	StartedAt time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// NewToolExecution creates a handle for the call named name. cancel aborts
// the call's context.
func NewToolExecution(name string, cancel context.CancelFunc) *ToolExecution {
	return &ToolExecution{
		Name:      name,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Cancel requests cancellation. It does not wait.
func (e *ToolExecution) Cancel() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Finish marks the execution as settled.
func (e *ToolExecution) Finish() {
	e.doneOnce.Do(func() { close(e.done) })
}

// Done is closed once the execution has settled.
func (e *ToolExecution) Done() <-chan struct{} {
	return e.done
}

// Flags is a point-in-time copy of a State's turn flags.
type Flags struct {
	IsReceivingResponse   bool `json:"is_receiving_response"`
	Interrupted           bool `json:"interrupted"`
	ReceivedModelResponse bool `json:"received_model_response"`
	ToolRunning           bool `json:"tool_running"`
}

// State is the relay state of one client connection.
//
// The outbound pump is the only writer of the turn flags and the tool
// processor the only writer of the current tool execution; the mutex
// exists because those goroutines run in parallel with readers.
type State struct {
	ID        string
	CreatedAt time.Time

	mu                    sync.Mutex
	isReceivingResponse   bool
	interrupted           bool
	receivedModelResponse bool
	currentToolExecution  *ToolExecution
	currentAudioStream    any // reserved for buffered audio turns

	upstream    upstream.Session
	cleanupOnce sync.Once
}

// NewState creates the state for connection id owning up.
func NewState(id string, up upstream.Session) *State {
	return &State{
		ID:        id,
		CreatedAt: time.Now(),
		upstream:  up,
	}
}

// Upstream returns the owned upstream session.
func (s *State) Upstream() upstream.Session {
	return s.upstream
}

// IsReceivingResponse reports whether model output for the current turn is streaming.
func (s *State) IsReceivingResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isReceivingResponse
}

// SetReceivingResponse sets the streaming flag.
func (s *State) SetReceivingResponse(v bool) {
	s.mu.Lock()
	s.isReceivingResponse = v
	s.mu.Unlock()
}

// Interrupted reports whether the current response was cut off by user input.
func (s *State) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

// SetInterrupted sets the interrupted flag.
func (s *State) SetInterrupted(v bool) {
	s.mu.Lock()
	s.interrupted = v
	s.mu.Unlock()
}

// ReceivedModelResponse reports whether the current turn produced model output.
func (s *State) ReceivedModelResponse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receivedModelResponse
}

// SetReceivedModelResponse sets the model output flag.
func (s *State) SetReceivedModelResponse(v bool) {
	s.mu.Lock()
	s.receivedModelResponse = v
	s.mu.Unlock()
}

// ToolExecution returns the in-flight tool execution, or nil.
func (s *State) ToolExecution() *ToolExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentToolExecution
}

// SetToolExecution sets or clears (nil) the in-flight tool execution.
func (s *State) SetToolExecution(e *ToolExecution) {
	s.mu.Lock()
	s.currentToolExecution = e
	s.mu.Unlock()
}

// AudioStream returns the reserved audio stream handle.
func (s *State) AudioStream() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentAudioStream
}

// Flags returns a copy of the turn flags.
func (s *State) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Flags{
		IsReceivingResponse:   s.isReceivingResponse,
		Interrupted:           s.interrupted,
		ReceivedModelResponse: s.receivedModelResponse,
		ToolRunning:           s.currentToolExecution != nil,
	}
}

// RunCleanup runs fn the first time it is called and reports whether fn ran.
func (s *State) RunCleanup(fn func()) bool {
	ran := false
	s.cleanupOnce.Do(func() {
		ran = true
		fn()
	})
	return ran
}
