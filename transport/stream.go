package transport

import (
	"github.com/meshstream/meshstream/streamer"
)

var _ streamer.Client = (*Conn)(nil)

// StreamHandler connects WebSocket clients to a Streamer
type StreamHandler struct {
	S *streamer.Streamer
}

func (h StreamHandler) OnConnect(c *Conn) error {
	return h.S.AddClient(c)
}

func (h StreamHandler) OnMessage(c *Conn, msg []byte) {
	h.S.HandleMessage(c.ID(), msg)
}

func (h StreamHandler) OnDisconnect(c *Conn, err error) {
	reason := "closed"
	if err != nil {
		reason = err.Error()
	}
	h.S.RemoveClient(c.ID(), reason)
}
