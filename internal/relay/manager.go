// Package relay pumps messages between a browser client and an upstream
// streaming AI session.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/codefionn/livecast/internal/consts"
	"github.com/codefionn/livecast/internal/logger"
	"github.com/codefionn/livecast/internal/secretdetect"
	"github.com/codefionn/livecast/internal/session"
	"github.com/codefionn/livecast/internal/upstream"
	"github.com/google/uuid"
)

// Redactor scrubs credentials from text before it is logged.
type Redactor interface {
	Redact(s string) string
}

// Options configures a Manager.
type Options struct {
	Factory  upstream.Factory
	Registry *session.Registry
	Executor Executor
	Logger   *logger.Logger

	// Redactor filters transcript text in debug logs. Defaults to a
	// secretdetect.Detector.
	Redactor Redactor

	// IdleTimeout ends the session when the client is silent this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// ToolQueueWarnDepth logs a warning when more tool batches are pending.
	// Zero disables the warning.
	ToolQueueWarnDepth int

	// ToolSettleTimeout bounds how long teardown waits for a cancelled
	// tool to return. Defaults to consts.ToolSettleTimeout.
	ToolSettleTimeout time.Duration

	// NewID generates session ids. Defaults to uuid.NewString.
	NewID func() string
}

// Manager owns the lifecycle of relay sessions.
type Manager struct {
	factory   upstream.Factory
	registry  *session.Registry
	executor  Executor
	log       *logger.Logger
	redactor  Redactor
	idle      time.Duration
	warnDepth int
	settle    time.Duration
	newID     func() string
}

// NewManager creates a manager. A nil Executor answers every tool call with
// DefaultToolResult.
func NewManager(opts Options) *Manager {
	m := &Manager{
		factory:   opts.Factory,
		registry:  opts.Registry,
		executor:  opts.Executor,
		log:       opts.Logger,
		redactor:  opts.Redactor,
		idle:      opts.IdleTimeout,
		warnDepth: opts.ToolQueueWarnDepth,
		settle:    opts.ToolSettleTimeout,
		newID:     opts.NewID,
	}
	if m.settle <= 0 {
		m.settle = consts.ToolSettleTimeout
	}
	if m.registry == nil {
		m.registry = session.NewRegistry()
	}
	if m.executor == nil {
		m.executor = StubExecutor{}
	}
	if m.redactor == nil {
		m.redactor = secretdetect.NewDetector()
	}
	if m.log == nil {
		m.log = logger.Global()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

// Registry returns the registry of live sessions.
func (m *Manager) Registry() *session.Registry {
	return m.registry
}

// Serve runs one client connection to completion. Failures the client has
// been told about (quota, timeout, disconnects) return nil; configuration
// and unclassified failures are returned after cleanup.
func (m *Manager) Serve(ctx context.Context, conn ClientConn) error {
	id := m.newID()
	log := m.log.WithPrefix("session " + shortID(id))
	w := newClientWriter(conn)

	up, err := m.factory.Open(ctx)
	if err != nil {
		return m.handleSetupError(w, log, err)
	}

	st := m.registry.Create(id, up)
	defer m.Cleanup(st)

	if err := w.send(ReadyMessage{Ready: true}); err != nil {
		log.Info("Client left before session %s was ready: %v", id, err)
		return nil
	}
	log.Info("New session started: %s", id)

	err = m.pump(ctx, st, w, log)
	return m.handleTermination(w, log, err)
}

func (m *Manager) handleSetupError(w *clientWriter, log *logger.Logger, err error) error {
	switch Classify(err) {
	case KindConfiguration:
		log.Error("Configuration error: %v", err)
		return err
	case KindQuotaExceeded:
		log.Info("Quota exceeded while opening session: %v", err)
		m.notifyQuota(w, log)
		return nil
	default:
		log.Error("Error in Gemini session: %v", err)
		m.notifyError(w, log, ErrorTypeGeneral, generalMessage, generalAction)
		return err
	}
}

// handleTermination deals with whatever the pump did not handle itself.
func (m *Manager) handleTermination(w *clientWriter, log *logger.Logger, err error) error {
	switch Classify(err) {
	case KindNone, KindConnectionClosed, KindQuotaExceeded:
		return nil
	case KindTimeout:
		log.Info("Session timed out: %v", err)
		m.notifyError(w, log, ErrorTypeTimeout, timeoutMessage, timeoutAction)
		return nil
	case KindAbnormalClosure:
		log.Info("Browser disconnected or refreshed: %v", err)
		m.notifyError(w, log, ErrorTypeConnectionClosed, closedMessage, closedAction)
		return nil
	default:
		log.Error("Error in Gemini session: %v", err)
		m.notifyError(w, log, ErrorTypeGeneral, generalMessage, generalAction)
		return err
	}
}

func (m *Manager) notifyQuota(w *clientWriter, log *logger.Logger) {
	m.notifyError(w, log, ErrorTypeQuotaExceeded, quotaMessage, quotaAction)
	if w.usable() {
		if err := w.send(ServerMessage{Type: TypeText, Data: quotaChatText}); err != nil {
			log.Debug("Failed to send quota text: %v", err)
		}
	}
}

// notifyError is best effort: nothing is sent once the socket has failed.
func (m *Manager) notifyError(w *clientWriter, log *logger.Logger, errorType, message, action string) {
	if !w.usable() {
		return
	}
	err := w.send(ServerMessage{Type: TypeError, Data: ErrorData{
		Message:   message,
		Action:    action,
		ErrorType: errorType,
	}})
	if err != nil {
		log.Debug("Failed to send %s notification: %v", errorType, err)
	}
}

// Cleanup tears down st: it cancels and awaits any running tool, closes
// the upstream session and removes st from the registry. Only the first
// call has any effect, and it never panics.
func (m *Manager) Cleanup(st *session.State) {
	if st == nil {
		return
	}
	log := m.log.WithPrefix("session " + shortID(st.ID))

	st.RunCleanup(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Error during session cleanup: %v", r)
			}
		}()
		defer m.registry.Remove(st.ID)

		if exec := st.ToolExecution(); exec != nil {
			exec.Cancel()
			select {
			case <-exec.Done():
			case <-time.After(m.settle):
				log.Warn("Tool %s did not stop within %s", exec.Name, m.settle)
			}
		}

		if up := st.Upstream(); up != nil {
			if err := up.Close(); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Error closing Gemini session: %v", err)
			}
		}

		log.Info("Session %s cleaned up and ended", st.ID)
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
