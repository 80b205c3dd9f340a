// Package upstream defines the boundary to the streaming AI session.
//
// Provider messages are converted once, at the boundary, into the closed
// Event and Input variants below so the relay can switch on them
// exhaustively instead of probing optional fields.
package upstream

import (
	"context"
)

// MIME types forwarded for client media.
const (
	MIMETypePCM  = "audio/pcm"
	MIMETypeJPEG = "image/jpeg"
)

// Session is one open upstream streaming session.
type Session interface {
	// Send forwards one input. endOfTurn marks the input as completing the
	// user's turn. Send must be safe for concurrent use.
	Send(ctx context.Context, in Input, endOfTurn bool) error
	// Receive returns the next event. The event stream is single-pass; it
	// returns io.EOF once the upstream ends the stream.
	Receive(ctx context.Context) (Event, error)
	// Close releases the session.
	Close() error
}

// Factory opens one upstream session per client connection.
type Factory interface {
	Open(ctx context.Context) (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Session, error)

// Open calls f(ctx).
func (f FactoryFunc) Open(ctx context.Context) (Session, error) {
	return f(ctx)
}

// Input is a message sent upstream: Audio, Image, Text or ToolResponse.
type Input interface {
	isInput()
}

// Audio is a raw PCM chunk.
type Audio struct {
	Data []byte
}

// Image is a JPEG frame.
type Image struct {
	Data []byte
}

// Text is user text.
type Text struct {
	Text string
}

// ToolResponse returns the results of one tool call batch.
type ToolResponse struct {
	Responses []FunctionResponse
}

func (Audio) isInput()        {}
func (Image) isInput()        {}
func (Text) isInput()         {}
func (ToolResponse) isInput() {}

// FunctionCall is one tool invocation requested by the upstream model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// FunctionResponse is the result of one FunctionCall.
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Event is a message received from upstream: ToolCall or ServerContent.
type Event interface {
	isEvent()
}

// ToolCall is a batch of function calls to execute.
type ToolCall struct {
	Calls []FunctionCall
}

// ServerContent carries model output for the current turn.
type ServerContent struct {
	Interrupted  bool
	Parts        []Part
	TurnComplete bool
}

// Part is one piece of a model turn: inline binary data or text.
type Part struct {
	Data     []byte
	MIMEType string
	Text     string
}

// IsInline reports whether the part carries binary data.
func (p Part) IsInline() bool {
	return len(p.Data) > 0
}

func (ToolCall) isEvent()      {}
func (ServerContent) isEvent() {}
