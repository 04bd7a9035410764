// Package transport implements the WebSocket server that connects renderers
// to a streamer.
package transport

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/meshstream/meshstream/config"
	"github.com/meshstream/meshstream/utils"
)

// ErrClosed is returned when sending on a closed connection
var ErrClosed = errors.New("connection closed")

const (
	// DefaultPingInterval is the interval between keepalive pings. A client
	// that does not answer within two intervals is disconnected.
	DefaultPingInterval = 30 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Handler receives the connection lifecycle events of a Server. OnConnect
// is called before the read loop starts; when it returns an error the
// connection is closed and OnDisconnect is not called. OnMessage is only
// called for text messages.
type Handler interface {
	OnConnect(c *Conn) error
	OnMessage(c *Conn, msg []byte)
	OnDisconnect(c *Conn, err error)
}

// New creates a Server. It does not start listening, see Run.
func New(c config.WebSocket, writeTimeout time.Duration, h Handler, l logrus.FieldLogger) *Server {
	if l == nil {
		l = logrus.StandardLogger()
	}
	s := &Server{
		c:            c,
		writeTimeout: writeTimeout,
		pingInterval: DefaultPingInterval,
		h:            h,
		l:            l,
		conns:        make(map[string]*Conn),
	}
	s.upgrader = websocket.Upgrader{
		EnableCompression: c.Compression,
		CheckOrigin:       s.checkOrigin,
	}
	return s
}

type Server struct {
	// OnListen is called with the bound address once Run is listening
	OnListen func(addr net.Addr)

	c            config.WebSocket
	writeTimeout time.Duration
	pingInterval time.Duration
	h            Handler
	l            logrus.FieldLogger
	upgrader     websocket.Upgrader

	mu      sync.Mutex
	conns   map[string]*Conn
	closing bool
	wg      sync.WaitGroup
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.c.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // not a browser
	}
	return lo.Contains(s.c.AllowedOrigins, origin) || lo.Contains(s.c.AllowedOrigins, "*")
}

// Run listens on the configured address until the context is done. On
// return all connections are closed.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.c.Address)
	if err != nil {
		return errors.Wrap(err, "websocket listen")
	}
	mux := http.NewServeMux()
	mux.Handle(s.c.Path, s)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.l.WithFields(logrus.Fields{
		"address":     ln.Addr().String(),
		"path":        s.c.Path,
		"compression": s.c.Compression,
	}).Info("WebSocket server listening")
	if s.OnListen != nil {
		s.OnListen(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.l.WithError(err).Warn("WebSocket server shutdown")
	}
	s.Close()
	return ctx.Err()
}

// ServeHTTP upgrades the request and runs the read loop of the connection
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied with an HTTP error
		metricRejected.WithLabelValues("upgrade").Inc()
		s.l.WithError(err).WithField("remote", r.RemoteAddr).Debug("WebSocket upgrade failed")
		return
	}
	if s.c.ReadLimit > 0 {
		ws.SetReadLimit(int64(s.c.ReadLimit))
	}
	ws.EnableWriteCompression(s.c.Compression)

	c := newConn(ws, s.writeTimeout, s.l)
	if err := s.h.OnConnect(c); err != nil {
		metricRejected.WithLabelValues("handler").Inc()
		c.l.WithError(err).Warn("Connection rejected")
		_ = c.closeWith(websocket.CloseTryAgainLater, lo.Substring(err.Error(), 0, 100))
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.h.OnDisconnect(c, ErrClosed)
		_ = c.closeWith(websocket.CloseGoingAway, "shutdown")
		return
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()
	metricConnections.Inc()
	metricOpen.Inc()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		metricOpen.Dec()
		s.wg.Done()
	}()

	err = s.readLoop(c)
	_ = c.Close()
	s.h.OnDisconnect(c, err)
}

// readLoop reads until the connection fails or is closed. A normal close by
// either side returns nil.
func (s *Server) readLoop(c *Conn) error {
	pongWait := 2 * s.pingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.ping(s.pingInterval)

	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		metricMessagesReceived.WithLabelValues(messageTypeName(mt)).Inc()
		if mt != websocket.TextMessage {
			c.l.WithField("data", utils.DisplayHex(msg, 16)).Debug("Ignoring binary message")
			continue
		}
		s.h.OnMessage(c, msg)
	}
}

// Conns returns the number of open connections
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close closes all open connections and waits for their read loops to end
func (s *Server) Close() {
	s.mu.Lock()
	s.closing = true
	conns := lo.Values(s.conns)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.closeWith(websocket.CloseGoingAway, "shutdown")
	}
	s.wg.Wait()
}
