package gemini

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/codefionn/livecast/internal/config"
	"github.com/codefionn/livecast/internal/securemem"
	"github.com/codefionn/livecast/internal/upstream"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"
)

type fakeLive struct {
	mu       sync.Mutex
	content  []genai.LiveClientContentInput
	realtime []genai.LiveRealtimeInput
	tools    []genai.LiveToolResponseInput

	inbox     chan *genai.LiveServerMessage
	recvErr   chan error
	closed    chan struct{}
	closeOnce sync.Once
	closes    int
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		inbox:   make(chan *genai.LiveServerMessage, 16),
		recvErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (f *fakeLive) SendClientContent(in genai.LiveClientContentInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = append(f.content, in)
	return nil
}

func (f *fakeLive) SendRealtimeInput(in genai.LiveRealtimeInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.realtime = append(f.realtime, in)
	return nil
}

func (f *fakeLive) SendToolResponse(in genai.LiveToolResponseInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = append(f.tools, in)
	return nil
}

func (f *fakeLive) Receive() (*genai.LiveServerMessage, error) {
	select {
	case msg := <-f.inbox:
		return msg, nil
	case err := <-f.recvErr:
		return nil, err
	case <-f.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (f *fakeLive) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func TestSendText(t *testing.T) {
	live := newFakeLive()
	s := newSession(live)

	require.NoError(t, s.Send(context.Background(), upstream.Text{Text: "hello"}, true))

	require.Len(t, live.content, 1)
	in := live.content[0]
	require.NotNil(t, in.TurnComplete)
	assert.True(t, *in.TurnComplete)
	require.Len(t, in.Turns, 1)
	assert.Equal(t, "hello", in.Turns[0].Parts[0].Text)
}

func TestSendAudioEndsTurn(t *testing.T) {
	live := newFakeLive()
	s := newSession(live)

	require.NoError(t, s.Send(context.Background(), upstream.Audio{Data: []byte{1, 2}}, true))

	require.Len(t, live.realtime, 2)
	require.NotNil(t, live.realtime[0].Audio)
	assert.Equal(t, upstream.MIMETypePCM, live.realtime[0].Audio.MIMEType)
	assert.Equal(t, []byte{1, 2}, live.realtime[0].Audio.Data)
	assert.True(t, live.realtime[1].AudioStreamEnd)
}

func TestSendImageKeepsTurnOpen(t *testing.T) {
	live := newFakeLive()
	s := newSession(live)

	require.NoError(t, s.Send(context.Background(), upstream.Image{Data: []byte{0xff, 0xd8}}, false))

	require.Len(t, live.realtime, 1)
	require.NotNil(t, live.realtime[0].Video)
	assert.Equal(t, upstream.MIMETypeJPEG, live.realtime[0].Video.MIMEType)
}

func TestSendToolResponse(t *testing.T) {
	live := newFakeLive()
	s := newSession(live)

	err := s.Send(context.Background(), upstream.ToolResponse{Responses: []upstream.FunctionResponse{
		{ID: "c1", Name: "lookup", Response: map[string]any{"output": "ok"}},
	}}, false)
	require.NoError(t, err)

	require.Len(t, live.tools, 1)
	require.Len(t, live.tools[0].FunctionResponses, 1)
	fr := live.tools[0].FunctionResponses[0]
	assert.Equal(t, "c1", fr.ID)
	assert.Equal(t, "lookup", fr.Name)
	assert.Equal(t, "ok", fr.Response["output"])
}

func TestSendCancelledContext(t *testing.T) {
	s := newSession(newFakeLive())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Send(ctx, upstream.Text{Text: "x"}, true), context.Canceled)
}

func TestReceiveConvertsEvents(t *testing.T) {
	live := newFakeLive()
	s := newSession(live)
	defer s.Close()

	live.inbox <- &genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}
	live.inbox <- &genai.LiveServerMessage{ToolCall: &genai.LiveServerToolCall{
		FunctionCalls: []*genai.FunctionCall{{ID: "1", Name: "get_time", Args: map[string]any{"tz": "UTC"}}},
	}}
	live.inbox <- &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
		ModelTurn: &genai.Content{Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: []byte{9}, MIMEType: "audio/pcm;rate=24000"}},
			{Text: "hi"},
		}},
		TurnComplete: true,
	}}

	ctx := context.Background()

	ev, err := s.Receive(ctx)
	require.NoError(t, err)
	call, ok := ev.(upstream.ToolCall)
	require.True(t, ok, "expected ToolCall, got %T", ev)
	require.Len(t, call.Calls, 1)
	assert.Equal(t, "get_time", call.Calls[0].Name)
	assert.Equal(t, "UTC", call.Calls[0].Args["tz"])

	ev, err = s.Receive(ctx)
	require.NoError(t, err)
	content, ok := ev.(upstream.ServerContent)
	require.True(t, ok, "expected ServerContent, got %T", ev)
	assert.True(t, content.TurnComplete)
	require.Len(t, content.Parts, 2)
	assert.True(t, content.Parts[0].IsInline())
	assert.Equal(t, "hi", content.Parts[1].Text)
}

func TestReceiveHonoursContext(t *testing.T) {
	s := newSession(newFakeLive())
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReceiveAfterCloseIsEOF(t *testing.T) {
	live := newFakeLive()
	s := newSession(live)

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Close()
	}()

	_, err := s.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	// the stream is single-pass and stays ended
	_, err = s.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReceiveErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantEOF bool
	}{
		{"normal close", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"quota close", &websocket.CloseError{Code: websocket.CloseInternalServerErr, Text: "Quota exceeded for quota metric"}, false},
		{"eof", io.EOF, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := newFakeLive()
			s := newSession(live)
			defer s.Close()

			live.recvErr <- tt.err
			_, err := s.Receive(context.Background())
			if tt.wantEOF {
				assert.ErrorIs(t, err, io.EOF)
				return
			}
			assert.ErrorIs(t, err, tt.err)
			assert.NotErrorIs(t, err, io.EOF)
		})
	}
}

func TestCloseOnce(t *testing.T) {
	live := newFakeLive()
	s := newSession(live)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, 1, live.closes)
}

func TestConnectConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.APIKey = securemem.NewString("k")
	f := NewFactory(cfg, nil, &genai.FunctionDeclaration{Name: "get_time"})

	cc := f.connectConfig()
	assert.Equal(t, []genai.Modality{genai.ModalityAudio}, cc.ResponseModalities)
	require.NotNil(t, cc.SpeechConfig)
	assert.Equal(t, "Kore", cc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.Nil(t, cc.SystemInstruction)
	require.Len(t, cc.Tools, 1)
	assert.Equal(t, "get_time", cc.Tools[0].FunctionDeclarations[0].Name)
}

func TestOpenWithoutAPIKey(t *testing.T) {
	f := NewFactory(config.DefaultConfig(), nil)

	_, err := f.Open(context.Background())
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))
}
