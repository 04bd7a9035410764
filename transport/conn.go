package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// closeGrace is the time allowed for writing the close message
const closeGrace = time.Second

// Conn is one client connection. It implements streamer.Client.
type Conn struct {
	id           string
	ws           *websocket.Conn
	remote       string
	writeTimeout time.Duration
	l            logrus.FieldLogger

	mu        sync.Mutex // serializes data messages
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, l logrus.FieldLogger) *Conn {
	id := uuid.NewString()
	remote := ws.RemoteAddr().String()
	return &Conn{
		id:           id,
		ws:           ws,
		remote:       remote,
		writeTimeout: writeTimeout,
		l: l.WithFields(logrus.Fields{
			"client": id,
			"remote": remote,
		}),
		done: make(chan struct{}),
	}
}

// ID returns the unique connection id
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr returns the address of the peer
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// Send sends one binary frame
func (c *Conn) Send(frame []byte) error {
	return c.write(websocket.BinaryMessage, frame)
}

// SendText sends one text message
func (c *Conn) SendText(msg []byte) error {
	return c.write(websocket.TextMessage, msg)
}

func (c *Conn) write(messageType int, data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		return err
	}
	metricMessagesSent.WithLabelValues(messageTypeName(messageType)).Inc()
	metricBytesSent.WithLabelValues(messageTypeName(messageType)).Add(float64(len(data)))
	return nil
}

// Close sends a normal close message and closes the connection. It can be
// called more than once.
func (c *Conn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *Conn) closeWith(code int, text string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		// WriteControl may be called concurrently with other writes
		msg := websocket.FormatCloseMessage(code, text)
		if werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); werr != nil {
			c.l.WithError(werr).Debug("Writing close message failed")
		}
		err = c.ws.Close()
	})
	return err
}

// ping sends a ping every interval until the connection is closed
func (c *Conn) ping(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
		}
		err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.l.WithError(err).Debug("Ping failed")
			return
		}
	}
}

func messageTypeName(messageType int) string {
	switch messageType {
	case websocket.BinaryMessage:
		return "binary"
	case websocket.TextMessage:
		return "text"
	default:
		return "other"
	}
}
