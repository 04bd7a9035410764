package events

import (
	"time"

	"github.com/meshstream/meshstream/archive"
	"github.com/meshstream/meshstream/utils/topics"
)

// New returns an initialized Events struct
func New() *Events {
	return &Events{
		Clients:       topics.NewWithInitial(ClientsInfo{}),
		Flushed:       topics.New[FlushInfo](),
		ArchiveStored: topics.New[archive.NameInfo](),
	}
}

// Events contains event topics that can be subscribed to.
type Events struct {
	// Clients is triggered when a client connects or disconnects
	Clients *topics.Topic[ClientsInfo]

	// Flushed is triggered after every flush cycle that had clients
	Flushed *topics.Topic[FlushInfo]

	// ArchiveStored is triggered when a capture was stored successfully
	ArchiveStored *topics.Topic[archive.NameInfo]
}

// ClientsInfo describes a change in the set of connected clients
type ClientsInfo struct {
	ID        string
	Connected bool // false for a disconnect
	Reason    string
	Count     int // clients connected after the change
}

// FlushInfo summarizes one flush cycle
type FlushInfo struct {
	Seq      uint64
	Full     int // clients that received the full scene
	Delta    int // synced clients that received changes
	Dropped  int // clients removed after a failed send
	Frames   int
	Bytes    int64
	Duration time.Duration
}
