package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codefionn/livecast/internal/logger"
	"github.com/codefionn/livecast/internal/session"
	"github.com/codefionn/livecast/internal/upstream"
)

// runInbound forwards client messages upstream in arrival order. Only
// socket failures end it; a bad message is logged and skipped.
func (m *Manager) runInbound(ctx context.Context, st *session.State, conn ClientConn, log *logger.Logger) error {
	for {
		data, err := m.readClient(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrIdleTimeout) {
				return err
			}
			if k := Classify(err); k != KindConnectionClosed && k != KindAbnormalClosure {
				log.Error("WebSocket connection error: %v", err)
			}
			return fmt.Errorf("read client message: %w", err)
		}

		if err := m.handleClientMessage(ctx, st, data, log); err != nil {
			log.Error("Error processing client message: %v", err)
		}
	}
}

// readClient reads one message, applying the idle timeout if configured.
func (m *Manager) readClient(ctx context.Context, conn ClientConn) ([]byte, error) {
	if m.idle <= 0 {
		return conn.ReadMessage(ctx)
	}

	readCtx, cancel := context.WithTimeout(ctx, m.idle)
	defer cancel()

	data, err := conn.ReadMessage(readCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrIdleTimeout
	}
	return data, err
}

func (m *Manager) handleClientMessage(ctx context.Context, st *session.State, data []byte, log *logger.Logger) error {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode client message: %w", err)
	}

	up := st.Upstream()

	switch msg.Type {
	case TypeAudio:
		payload, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return fmt.Errorf("decode audio: %w", err)
		}
		log.Debug("Client -> Gemini: <audio data> (%d bytes)", len(payload))
		// every chunk closes the turn
		return up.Send(ctx, upstream.Audio{Data: payload}, true)

	case TypeImage:
		payload, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		log.Debug("Client -> Gemini: <image data> (%d bytes)", len(payload))
		return up.Send(ctx, upstream.Image{Data: payload}, false)

	case TypeText:
		log.Debug("Client -> Gemini: %s", m.redactor.Redact(msg.Data))
		return up.Send(ctx, upstream.Text{Text: msg.Data}, true)

	case TypeEnd:
		log.Debug("Client signalled end of input")
		return nil

	default:
		log.Warn("Unknown client message type: %q", msg.Type)
		return nil
	}
}
