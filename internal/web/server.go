// Package web serves the browser-facing websocket endpoint and a small
// JSON status API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/codefionn/livecast/internal/config"
	"github.com/codefionn/livecast/internal/consts"
	"github.com/codefionn/livecast/internal/logger"
	"github.com/codefionn/livecast/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const shutdownReason = "server shutting down"

// Server accepts websocket clients and hands each one to the relay.
type Server struct {
	cfg        *config.Config
	manager    *relay.Manager
	router     *httprouter.Router
	upgrader   websocket.Upgrader
	hub        *Hub
	httpServer *http.Server
	listener   net.Listener
	startedAt  time.Time

	// baseCtx is the parent of every session; cancelling it ends them all.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewServer creates a server for cfg.Addr.
func NewServer(cfg *config.Config, manager *relay.Manager) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		manager: manager,
		router:  httprouter.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  consts.WebsocketBufferSize,
			WriteBufferSize: consts.WebsocketBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		hub:     NewHub(),
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/ws", s.handleWebSocket)
	s.router.GET("/", s.handleWebSocket)
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/sessions", s.handleSessions)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: consts.ReadHeaderTimeout,
		ErrorLog:          logger.NewStdLogger(logger.Global(), slog.LevelWarn),
	}

	go func() {
		logger.Info("Server listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Stop stops accepting connections, ends every session and waits for their
// cleanup. If ctx expires first the remaining sockets are closed.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("Stopping server...")

	var err error
	if s.httpServer != nil {
		if serr := s.httpServer.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("failed to shutdown HTTP server: %w", serr)
		}
	}

	s.hub.StopAccepting()
	s.cancel()

	waited := make(chan struct{})
	go func() {
		s.hub.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		logger.Warn("%d sessions still open at shutdown deadline, closing them", s.hub.ClientCount())
		s.hub.CloseAll(shutdownReason)
		if err == nil {
			err = ctx.Err()
		}
	}

	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logger.Warn("Failed to upgrade WebSocket from %s: %v", r.RemoteAddr, err)
		return
	}

	client := NewClient(conn, ClientOptions{
		PingInterval:    s.cfg.PingInterval(),
		PingTimeout:     s.cfg.PingTimeout(),
		MaxMessageBytes: s.cfg.MaxMessageBytes,
	})

	if !s.hub.Register(client) {
		_ = client.Close(websocket.CloseGoingAway, shutdownReason)
		return
	}
	defer s.hub.Unregister(client)

	logger.Info("Client connected from %s", client.RemoteAddr())

	if err := s.manager.Serve(s.baseCtx, client); err != nil {
		logger.Debug("Session for %s ended with error: %v", client.RemoteAddr(), err)
	}

	code, reason := websocket.CloseNormalClosure, ""
	if s.baseCtx.Err() != nil {
		code, reason = websocket.CloseGoingAway, shutdownReason
	}
	if err := client.Close(code, reason); err != nil {
		logger.Debug("Failed to close client %s: %v", client.RemoteAddr(), err)
	}
	logger.Info("Client disconnected: %s", client.RemoteAddr())
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"clients"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	uptime := time.Duration(0)
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Truncate(time.Second)
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Sessions: s.manager.Registry().Len(),
		Clients:  s.hub.ClientCount(),
		Uptime:   uptime.String(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.manager.Registry().List())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write JSON response: %v", err)
	}
}
