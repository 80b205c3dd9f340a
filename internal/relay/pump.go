package relay

import (
	"context"

	"github.com/codefionn/livecast/internal/logger"
	"github.com/codefionn/livecast/internal/session"
	"golang.org/x/sync/errgroup"
)

// pump runs the inbound and outbound tasks until either ends. A failing
// task cancels the other through the group, after its error is recorded;
// a task that ends cleanly cancels the other itself. Quota errors and
// ordinary disconnects are handled here; anything else is returned.
func (m *Manager) pump(ctx context.Context, st *session.State, w *clientWriter, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := m.runInbound(gctx, st, w.conn, log)
		if err == nil {
			cancel()
		}
		return err
	})
	g.Go(func() error {
		err := m.runOutbound(gctx, st, w, log)
		if err == nil {
			cancel()
		}
		return err
	})

	err := g.Wait()
	switch Classify(err) {
	case KindNone:
		return nil
	case KindQuotaExceeded:
		log.Info("Quota exceeded error occurred: %v", err)
		m.notifyQuota(w, log)
		return nil
	case KindConnectionClosed:
		log.Info("WebSocket connection closed")
		return nil
	default:
		return err
	}
}
