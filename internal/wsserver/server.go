// Package wsserver exposes the session protocol over WebSocket.
package wsserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/protocol"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

// HealthFunc reports backend health for /healthz.
type HealthFunc func(ctx context.Context) error

type Config struct {
	ReadLimit      int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	OriginPatterns []string
}

func (c Config) withDefaults() Config {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

type Server struct {
	handler *protocol.Handler
	health  HealthFunc
	cfg     Config
	log     *zap.Logger

	srvMu sync.Mutex
	srv   *http.Server
	wg    sync.WaitGroup

	// base parents every request context; cancelling it ends open sockets.
	base context.Context
	stop context.CancelFunc
}

func New(h *protocol.Handler, cfg Config, health HealthFunc) *Server {
	base, stop := context.WithCancel(context.Background())
	return &Server{handler: h, health: health, cfg: cfg.withDefaults(), log: obslog.L(), base: base, stop: stop}
}

// Routes returns the HTTP handler serving /ws and /healthz.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", s.serveHealth)
	return mux
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.log.Warn("healthz_failed", zap.Error(err))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  s.cfg.OriginPatterns,
	})
	if err != nil {
		s.log.Warn("ws_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	c.SetReadLimit(s.cfg.ReadLimit)
	wc := &conn{id: uuid.NewString(), c: c, writeTimeout: s.cfg.WriteTimeout}
	ctx, cancel := context.WithCancel(r.Context())
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			cancel()
			s.handler.Disconnect(wc.id)
		})
	}
	defer cleanup()
	s.log.Debug("ws_open", zap.String("conn_id", wc.id), zap.String("remote", r.RemoteAddr))

	go s.pingLoop(ctx, wc, cleanup)

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				s.log.Debug("ws_read_end", zap.String("conn_id", wc.id), zap.Error(err))
			}
			_ = c.Close(websocket.StatusNormalClosure, "")
			return
		}
		if typ != websocket.MessageText {
			_ = wc.Send(ctx, chessdto.Error("text frames only"))
			continue
		}
		s.handler.Handle(ctx, wc, data)
	}
}

func (s *Server) pingLoop(ctx context.Context, wc *conn, cleanup func()) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := wc.c.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				s.log.Info("ws_ping_timeout", zap.String("conn_id", wc.id), zap.Error(err))
				_ = wc.c.Close(websocket.StatusGoingAway, "ping failure")
				cleanup()
				return
			}
		}
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		BaseContext:       func(net.Listener) context.Context { return s.base },
	}
	s.srvMu.Lock()
	s.srv = srv
	s.srvMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http_listen", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(sctx)
}

// Shutdown stops accepting connections and waits for open sockets to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.srvMu.Lock()
	srv := s.srv
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// conn adapts a websocket to session.Conn.
type conn struct {
	id           string
	c            *websocket.Conn
	writeTimeout time.Duration
}

func (w *conn) ID() string { return w.id }

func (w *conn) Send(ctx context.Context, msg *chessdto.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, w.c, msg)
}
