package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/substrate/internal/config"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/pkg/vmath"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Server exposes the replication stream on /ws, metrics on /metrics and a
// liveness probe on /healthz.
type Server struct {
	cfg      config.Server
	hub      *Hub
	metrics  http.Handler
	logger   log.Log
	upgrader websocket.Upgrader
}

func New(cfg config.Server, hub *Hub, metrics http.Handler, logger log.Log) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		cfg:     cfg,
		hub:     hub,
		metrics: metrics,
		logger:  logger.With(log.String("component", "server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListenFailed, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", log.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"viewers": st.Viewers,
		"frames":  st.Frames,
		"dropped": st.Dropped,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	origin, err := parseOrigin(r.URL.Query().Get("origin"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", log.Error(err))
		return
	}

	v := s.hub.Join(origin)
	logger := s.logger.With(log.String("viewer", v.ID()), log.String("remote_addr", conn.RemoteAddr().String()))
	go s.writeLoop(conn, v, logger)
	s.readLoop(conn, v, logger)
}

func (s *Server) readLoop(conn *websocket.Conn, v *Viewer, logger log.Log) {
	defer func() {
		s.hub.Leave(v)
		_ = conn.Close()
	}()

	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("viewer read failed", log.Error(err))
			}
			return
		}

		switch msg.Type {
		case MessageMove:
			s.hub.Move(v, msg.Origin)
		default:
			logger.Debug("unknown viewer message", log.String("type", msg.Type))
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, v *Viewer, logger log.Log) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("viewer write failed", log.Error(err))
				s.hub.Leave(v)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.Leave(v)
				return
			}
		}
	}
}

// parseOrigin reads "x,y,z". An empty string is the world origin.
func parseOrigin(raw string) (vmath.Vec3, error) {
	var v vmath.Vec3
	if raw == "" {
		return v, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("%w: %q", ErrBadOrigin, raw)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v, fmt.Errorf("%w: %q", ErrBadOrigin, raw)
		}
		v[i] = f
	}
	if !finite(v) {
		return v, fmt.Errorf("%w: %q", ErrBadOrigin, raw)
	}
	return v, nil
}

func finite(v vmath.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
