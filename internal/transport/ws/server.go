package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/relaychat/internal/transport"
)

// Server accepts WebSocket connections on one path of a gin engine and
// reports them to a transport.Handler.
type Server struct {
	opts     Options
	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu         sync.Mutex
	handler    transport.Handler
	listener   net.Listener
	httpServer *http.Server
	conns      map[*conn]struct{}
	closing    bool
	wg         sync.WaitGroup
}

var _ transport.Server = (*Server)(nil)

// NewServer builds the engine with the health, test page and upgrade routes.
func NewServer(opts Options) *Server {
	if opts.Mode != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		opts:   opts,
		engine: gin.New(),
		conns:  make(map[*conn]struct{}),
	}
	policy := newOriginPolicy(opts.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}

	if opts.Mode == gin.DebugMode {
		s.engine.Use(gin.Logger())
	}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "relaychat hub is running")
	})
	s.engine.GET("/test", s.testPageHandler)
	s.engine.GET(opts.Path, s.upgrade)

	return s
}

// Handle mounts an extra HTTP handler. It must be called before Listen.
func (s *Server) Handle(path string, h http.Handler) {
	s.engine.Any(path, gin.WrapH(h))
}

// Listen binds address and serves in the background.
func (s *Server) Listen(address string, handler transport.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return &transport.TransportError{Op: "listen", Err: errors.New("already listening")}
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return &transport.TransportError{Op: "listen", Err: err}
	}

	s.handler = handler
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("module", "ws").Msg("http server stopped")
		}
	}()

	log.Info().Str("module", "ws").Str("addr", ln.Addr().String()).Str("path", s.opts.Path).Msg("listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting, then waits for open connections to finish until
// ctx ends. Connections still open at that point are dropped.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	srv := s.httpServer
	s.mu.Unlock()

	var shutdownErr error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = &transport.TransportError{Op: "shutdown", Err: err}
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
	}

	s.mu.Lock()
	remaining := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		remaining = append(remaining, c)
	}
	s.mu.Unlock()

	log.Warn().Str("module", "ws").Int("connections", len(remaining)).Msg("shutdown timed out, dropping connections")
	for _, c := range remaining {
		_ = c.ws.Close()
	}
	<-done

	if shutdownErr != nil {
		return shutdownErr
	}
	return &transport.TransportError{Op: "shutdown", Err: ctx.Err()}
}

func (s *Server) upgrade(c *gin.Context) {
	s.mu.Lock()
	handler, closing := s.handler, s.closing
	s.mu.Unlock()

	if handler == nil || closing {
		c.String(http.StatusServiceUnavailable, "hub is not accepting connections")
		return
	}

	wsConn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("remote", c.Request.RemoteAddr).Msg("upgrade failed")
		return
	}

	client := newConn(wsConn, c.Request.RemoteAddr, s.opts, handler)
	if !s.track(client) {
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub is shutting down"),
			time.Now().Add(s.opts.WriteWait))
		_ = wsConn.Close()
		return
	}

	log.Debug().Str("module", "ws").Str("id", client.id).Str("remote", client.addr).Msg("connection upgraded")

	handler.OnOpen(client)

	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	c.onDone = s.untrack
	s.wg.Add(2)
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
