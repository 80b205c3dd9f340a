package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/codefionn/livecast/internal/logger"
	"github.com/codefionn/livecast/internal/session"
	"github.com/codefionn/livecast/internal/upstream"
)

// runOutbound delivers upstream events to the client in arrival order. Tool
// call batches go to a queue served by a separate goroutine so slow tools
// never hold up audio or text.
func (m *Manager) runOutbound(ctx context.Context, st *session.State, w *clientWriter, log *logger.Logger) error {
	queue := newToolQueue()

	procCtx, cancelProc := context.WithCancel(ctx)
	procDone := make(chan struct{})
	go func() {
		defer close(procDone)
		m.processToolQueue(procCtx, st, w, queue, log)
	}()
	defer func() {
		cancelProc()
		select {
		case <-procDone:
		case <-time.After(m.settle):
			// the tool handle stays set, Cleanup gives it one more bounded wait
			log.Warn("Tool processor did not stop within %s", m.settle)
		}
		if n := queue.Drain(); n > 0 {
			log.Info("Discarded %d pending tool call batches", n)
		}
	}()

	up := st.Upstream()
	for {
		event, err := up.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("Gemini stream ended")
				return nil
			}
			return err
		}

		switch ev := event.(type) {
		case upstream.ToolCall:
			log.Info("Tool call received from Gemini (%d calls)", len(ev.Calls))
			if depth := queue.Put(ev); m.warnDepth > 0 && depth > m.warnDepth {
				log.Warn("Tool call queue is %d batches deep", depth)
			}
		case upstream.ServerContent:
			if err := m.forwardContent(st, w, ev, log); err != nil {
				if errors.Is(err, ErrClientGone) {
					return err
				}
				log.Error("Error handling Gemini response: %v", err)
			}
		default:
			log.Warn("Ignoring unknown upstream event %T", event)
		}
	}
}

func (m *Manager) forwardContent(st *session.State, w *clientWriter, sc upstream.ServerContent, log *logger.Logger) error {
	if sc.Interrupted {
		log.Info("Interruption detected from Gemini")
		st.SetInterrupted(true)
		st.SetReceivingResponse(false)
		return w.send(ServerMessage{Type: TypeInterrupted, Data: InterruptedData{Message: interruptedMessage}})
	}

	if len(sc.Parts) > 0 {
		st.SetReceivedModelResponse(true)
		st.SetReceivingResponse(true)

		for _, part := range sc.Parts {
			switch {
			case part.IsInline():
				log.Debug("Gemini -> Client: <audio data> (%d bytes)", len(part.Data))
				if err := w.send(ServerMessage{Type: TypeAudio, Data: base64.StdEncoding.EncodeToString(part.Data)}); err != nil {
					return err
				}
			case part.Text != "":
				log.Debug("Gemini -> Client: %s", m.redactor.Redact(part.Text))
				if err := w.send(ServerMessage{Type: TypeText, Data: part.Text}); err != nil {
					return err
				}
			}
		}
	}

	if sc.TurnComplete {
		log.Debug("Turn complete")
		st.SetReceivedModelResponse(false)
		st.SetReceivingResponse(false)
		st.SetInterrupted(false)
		if err := w.send(SignalMessage{Type: TypeTurnComplete}); err != nil {
			return fmt.Errorf("send turn_complete: %w", err)
		}
	}
	return nil
}

// processToolQueue executes queued batches one at a time until ctx is done.
func (m *Manager) processToolQueue(ctx context.Context, st *session.State, w *clientWriter, queue *toolQueue, log *logger.Logger) {
	for {
		batch, err := queue.Get(ctx)
		if err != nil {
			return
		}
		if err := m.processToolBatch(ctx, st, w, batch, log); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Error processing tool call: %v", err)
		}
	}
}

// processToolBatch runs each call in order and sends the collected
// responses upstream as one message. A failed call abandons the batch.
func (m *Manager) processToolBatch(ctx context.Context, st *session.State, w *clientWriter, batch upstream.ToolCall, log *logger.Logger) error {
	responses := make([]upstream.FunctionResponse, 0, len(batch.Calls))
	for _, call := range batch.Calls {
		resp, err := m.executeTool(ctx, st, w, call, log)
		if err != nil {
			return fmt.Errorf("tool %s: %w", call.Name, err)
		}
		responses = append(responses, resp)
	}

	if len(responses) == 0 {
		return nil
	}
	if err := st.Upstream().Send(ctx, upstream.ToolResponse{Responses: responses}, false); err != nil {
		return fmt.Errorf("send tool response: %w", err)
	}
	return nil
}

func (m *Manager) executeTool(ctx context.Context, st *session.State, w *clientWriter, call upstream.FunctionCall, log *logger.Logger) (upstream.FunctionResponse, error) {
	execCtx, cancel := context.WithCancel(ctx)
	exec := session.NewToolExecution(call.Name, cancel)
	st.SetToolExecution(exec)
	defer func() {
		st.SetToolExecution(nil)
		exec.Finish()
		cancel()
	}()

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	log.Info("Executing tool %s", call.Name)
	if err := w.send(ServerMessage{Type: TypeFunctionCall, Data: FunctionCallData{Name: call.Name, Args: args}}); err != nil {
		return upstream.FunctionResponse{}, err
	}

	result, err := m.executor.Execute(execCtx, call)
	if err != nil {
		return upstream.FunctionResponse{}, err
	}

	if err := w.send(ServerMessage{Type: TypeFunctionResponse, Data: result}); err != nil {
		return upstream.FunctionResponse{}, err
	}

	return upstream.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: responseMap(result),
	}, nil
}
