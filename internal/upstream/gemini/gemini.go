// Package gemini opens upstream sessions against the Gemini Live API using
// the official Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/codefionn/livecast/internal/config"
	"github.com/codefionn/livecast/internal/logger"
	"github.com/codefionn/livecast/internal/upstream"
	"github.com/gorilla/websocket"
	genai "google.golang.org/genai"
)

// liveConn is the subset of *genai.Session used by the adapter.
type liveConn interface {
	SendClientContent(input genai.LiveClientContentInput) error
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// Factory opens Gemini Live sessions.
type Factory struct {
	cfg          *config.Config
	instructions *config.Instructions
	declarations []*genai.FunctionDeclaration
}

// NewFactory creates a factory. instructions may be nil. declarations are
// the functions the model may call; the relay routes them to its executor.
func NewFactory(cfg *config.Config, instructions *config.Instructions, declarations ...*genai.FunctionDeclaration) *Factory {
	return &Factory{
		cfg:          cfg,
		instructions: instructions,
		declarations: declarations,
	}
}

// Open connects a new live session.
func (f *Factory) Open(ctx context.Context) (upstream.Session, error) {
	if err := f.cfg.RequireAPIKey(); err != nil {
		logger.Error("Configuration error while creating Gemini session: %v", err)
		return nil, err
	}

	logger.Info("Initializing Gemini live session for model %s", f.cfg.Model)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  f.cfg.APIKey.Reveal(),
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: f.cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google GenAI client: %w", err)
	}

	conn, err := client.Live.Connect(ctx, f.cfg.Model, f.connectConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	return newSession(conn), nil
}

func (f *Factory) connectConfig() *genai.LiveConnectConfig {
	cc := &genai.LiveConnectConfig{}

	for _, m := range f.cfg.ResponseModalities {
		cc.ResponseModalities = append(cc.ResponseModalities, genai.Modality(strings.ToUpper(m)))
	}

	if f.cfg.Voice != "" {
		cc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: f.cfg.Voice},
			},
		}
	}

	var instructions string
	if f.instructions != nil {
		instructions = f.instructions.Current()
	}
	if strings.TrimSpace(instructions) != "" {
		cc.SystemInstruction = genai.NewContentFromText(instructions, genai.RoleUser)
	}

	if len(f.declarations) > 0 {
		cc.Tools = []*genai.Tool{{FunctionDeclarations: f.declarations}}
	}

	return cc
}

type received struct {
	event upstream.Event
}

// session adapts a genai live session to upstream.Session.
//
// genai writes to a single gorilla websocket connection, which allows only
// one concurrent writer, so every send holds sendMu. Receive is made
// cancellable by reading on a background goroutine.
type session struct {
	conn liveConn

	sendMu sync.Mutex

	startOnce sync.Once
	events    chan received
	readErr   error

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func newSession(conn liveConn) *session {
	return &session{
		conn:   conn,
		events: make(chan received),
		closed: make(chan struct{}),
	}
}

// Send forwards one input upstream.
func (s *session) Send(ctx context.Context, in upstream.Input, endOfTurn bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	switch in := in.(type) {
	case upstream.Audio:
		return s.sendMedia(&genai.Blob{Data: in.Data, MIMEType: upstream.MIMETypePCM}, true, endOfTurn)
	case upstream.Image:
		return s.sendMedia(&genai.Blob{Data: in.Data, MIMEType: upstream.MIMETypeJPEG}, false, endOfTurn)
	case upstream.Text:
		return s.conn.SendClientContent(genai.LiveClientContentInput{
			Turns:        []*genai.Content{genai.NewContentFromText(in.Text, genai.RoleUser)},
			TurnComplete: genai.Ptr(endOfTurn),
		})
	case upstream.ToolResponse:
		responses := make([]*genai.FunctionResponse, 0, len(in.Responses))
		for _, r := range in.Responses {
			responses = append(responses, &genai.FunctionResponse{
				ID:       r.ID,
				Name:     r.Name,
				Response: r.Response,
			})
		}
		return s.conn.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
	default:
		return fmt.Errorf("unsupported upstream input %T", in)
	}
}

// sendMedia streams a blob as realtime input. Realtime input has no turn
// flag, so endOfTurn is expressed as an audio stream end marker.
func (s *session) sendMedia(blob *genai.Blob, audio bool, endOfTurn bool) error {
	input := genai.LiveRealtimeInput{}
	if audio {
		input.Audio = blob
	} else {
		input.Video = blob
	}
	if err := s.conn.SendRealtimeInput(input); err != nil {
		return err
	}
	if endOfTurn {
		return s.conn.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true})
	}
	return nil
}

// Receive returns the next converted event.
func (s *session) Receive(ctx context.Context) (upstream.Event, error) {
	s.startOnce.Do(func() { go s.readLoop() })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-s.events:
		if !ok {
			return nil, s.readErr
		}
		return r.event, nil
	}
}

func (s *session) readLoop() {
	defer close(s.events)

	for {
		msg, err := s.conn.Receive()
		if err != nil {
			s.readErr = translateReceiveError(err, s.isClosed())
			return
		}

		event, ok := convertMessage(msg)
		if !ok {
			continue
		}

		select {
		case s.events <- received{event: event}:
		case <-s.closed:
			s.readErr = io.EOF
			return
		}
	}
}

func (s *session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close closes the live connection. Later calls return the first result.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// translateReceiveError maps a normal end of the stream to io.EOF.
func translateReceiveError(err error, closed bool) error {
	if closed || errors.Is(err, io.EOF) {
		return io.EOF
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return io.EOF
	}
	return fmt.Errorf("receive from gemini: %w", err)
}

// convertMessage builds the upstream variant for msg. Messages that carry
// neither a tool call nor server content are skipped.
func convertMessage(msg *genai.LiveServerMessage) (upstream.Event, bool) {
	if msg == nil {
		return nil, false
	}

	if msg.ToolCall != nil {
		calls := make([]upstream.FunctionCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			calls = append(calls, upstream.FunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		return upstream.ToolCall{Calls: calls}, true
	}

	if sc := msg.ServerContent; sc != nil {
		content := upstream.ServerContent{
			Interrupted:  sc.Interrupted,
			TurnComplete: sc.TurnComplete,
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				switch {
				case p == nil:
				case p.InlineData != nil && len(p.InlineData.Data) > 0:
					content.Parts = append(content.Parts, upstream.Part{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType})
				case p.Text != "":
					content.Parts = append(content.Parts, upstream.Part{Text: p.Text})
				}
			}
		}
		return content, true
	}

	switch {
	case msg.SetupComplete != nil:
		logger.Debug("Gemini setup complete")
	case msg.GoAway != nil:
		logger.Warn("Gemini will close the session in %s", msg.GoAway.TimeLeft)
	case msg.ToolCallCancellation != nil:
		logger.Info("Gemini cancelled tool calls %v", msg.ToolCallCancellation.IDs)
	}
	return nil, false
}
