// Package streamer implements the flush scheduler: it periodically takes a
// snapshot of a scene and sends every connected client what it is missing.
package streamer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/meshstream/meshstream/archive"
	"github.com/meshstream/meshstream/config"
	"github.com/meshstream/meshstream/frame"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/status/healthtracker"
	"github.com/meshstream/meshstream/status/starttracker"
	"github.com/meshstream/meshstream/streamer/events"
	"github.com/meshstream/meshstream/utils/climit"
)

var (
	ErrTransportWriteFailed = errors.New("transport write failed")
	ErrDuplicateClient      = errors.New("client already connected")
)

// Client is a connected renderer. Send and SendText are never called
// concurrently for the same client.
type Client interface {
	ID() string
	// Send sends one binary frame. The buffer must not be retained.
	Send(frame []byte) error
	// SendText sends one text message
	SendText(msg []byte) error
	Close() error
}

// Options are optional collaborators of a Streamer
type Options struct {
	// Events are used to publish events to
	Events *events.Events
	// Archive stores periodic captures if set and the archive interval is
	// not zero
	Archive *archive.Archive
	// FlushHealth tracks send failures, ArchiveHealth capture failures
	FlushHealth   *healthtracker.HealthTracker
	ArchiveHealth *healthtracker.HealthTracker
	Start         *starttracker.StartTracker
	Logger        logrus.FieldLogger
}

type clientState struct {
	c      Client
	since  time.Time
	l      logrus.FieldLogger
	synced atomic.Bool // received a full scene
	resync atomic.Bool // asked for a full scene
	frames atomic.Int64
	bytes  atomic.Int64
}

// ClientInfo describes a connected client for the status page
type ClientInfo struct {
	ID     string    `json:"id"`
	Since  time.Time `json:"since"`
	Synced bool      `json:"synced"`
	Frames int64     `json:"frames"`
	Bytes  int64     `json:"bytes"`
}

// New creates a Streamer for a scene
func New(sc *scene.Context, c config.Stream, opt Options) (*Streamer, error) {
	if c.MaxFrameSize < frame.MinFrameSize {
		return nil, errors.Wrapf(frame.ErrFrameTooSmall, "%s", c.MaxFrameSize)
	}
	if c.FlushInterval <= 0 {
		return nil, fmt.Errorf("invalid flush interval %s", c.FlushInterval)
	}
	if opt.Events == nil {
		opt.Events = events.New()
	}
	l := opt.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	l = l.WithField("scene", sc.Name())
	return &Streamer{
		sc:      sc,
		c:       c,
		opt:     opt,
		l:       l,
		clients: make(map[string]*clientState),
		limit:   climit.New(sc.Name(), "send", c.SendConcurrency, l),
	}, nil
}

type Streamer struct {
	sc    *scene.Context
	c     config.Stream
	opt   Options
	l     logrus.FieldLogger
	limit *climit.ConcurrencyLimit

	mu      sync.Mutex
	clients map[string]*clientState

	flushMu     sync.Mutex // only one flush cycle at a time
	lastArchive time.Time
	archiving   atomic.Bool
	archiveWG   sync.WaitGroup
}

// Events returns the event topics of this Streamer
func (s *Streamer) Events() *events.Events {
	return s.opt.Events
}

// AddClient sends the scene metadata to a new client and registers it. The
// client receives the full scene on the next flush.
func (s *Streamer) AddClient(c Client) error {
	meta, err := json.Marshal(s.sc.Metadata())
	if err != nil {
		return err
	}
	if err := c.SendText(meta); err != nil {
		return fmt.Errorf("%w: metadata: %w", ErrTransportWriteFailed, err)
	}

	s.mu.Lock()
	if _, exists := s.clients[c.ID()]; exists {
		s.mu.Unlock()
		return errors.Wrapf(ErrDuplicateClient, "id %s", c.ID())
	}
	cs := &clientState{
		c:     c,
		since: time.Now(),
		l:     s.l.WithField("client", c.ID()),
	}
	s.clients[c.ID()] = cs
	n := len(s.clients)
	s.mu.Unlock()

	cs.l.WithField("clients", n).Info("Client connected")
	metricClients.WithLabelValues(s.sc.Name()).Set(float64(n))
	s.opt.Events.Clients.Publish(events.ClientsInfo{
		ID:        c.ID(),
		Connected: true,
		Count:     n,
	})
	return nil
}

// RemoveClient unregisters a client. It does not close the client. Removing
// an unknown client is a no-op.
func (s *Streamer) RemoveClient(id string, reason string) {
	s.mu.Lock()
	cs, exists := s.clients[id]
	delete(s.clients, id)
	n := len(s.clients)
	s.mu.Unlock()
	if !exists {
		return
	}

	cs.l.WithFields(logrus.Fields{
		"clients": n,
		"reason":  reason,
		"frames":  cs.frames.Load(),
		"bytes":   cs.bytes.Load(),
	}).Info("Client disconnected")
	metricClients.WithLabelValues(s.sc.Name()).Set(float64(n))
	s.opt.Events.Clients.Publish(events.ClientsInfo{
		ID:     id,
		Reason: reason,
		Count:  n,
	})
}

// Resync makes a client receive the full scene on the next flush
func (s *Streamer) Resync(id string) {
	s.mu.Lock()
	cs, exists := s.clients[id]
	s.mu.Unlock()
	if !exists {
		return
	}
	cs.resync.Store(true)
	metricResyncs.WithLabelValues(s.sc.Name()).Inc()
	cs.l.Debug("Client requested resync")
}

// HandleMessage handles a text message from a client
func (s *Streamer) HandleMessage(id string, msg []byte) {
	switch string(msg) {
	case "resync":
		s.Resync(id)
	default:
		s.l.WithField("client", id).WithField("msg", lo.Substring(string(msg), 0, 32)).
			Debug("Ignoring unknown client message")
	}
}

// Clients returns the connected clients, oldest first
func (s *Streamer) Clients() []ClientInfo {
	s.mu.Lock()
	states := lo.Values(s.clients)
	s.mu.Unlock()

	infos := lo.Map(states, func(cs *clientState, _ int) ClientInfo {
		return ClientInfo{
			ID:     cs.c.ID(),
			Since:  cs.since,
			Synced: cs.synced.Load(),
			Frames: cs.frames.Load(),
			Bytes:  cs.bytes.Load(),
		}
	})
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Since.Equal(infos[j].Since) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].Since.Before(infos[j].Since)
	})
	return infos
}

func (s *Streamer) clientStates() []*clientState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Values(s.clients)
}

// Close closes all clients
func (s *Streamer) Close() {
	for _, cs := range s.clientStates() {
		s.RemoveClient(cs.c.ID(), "shutdown")
		if err := cs.c.Close(); err != nil {
			cs.l.WithError(err).Debug("Close failed")
		}
	}
}
