package status

import (
	"context"
	"sync"

	"github.com/PowerDNS/simpleblob"
	"github.com/pkg/errors"

	"github.com/meshstream/meshstream/archive"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/streamer"
)

type info struct {
	mu       sync.Mutex
	st       simpleblob.Interface
	sc       *scene.Context
	streamer *streamer.Streamer
}

var gi info

// ListCaptures lists the captures of the registered scene in the registered
// storage.
func (i *info) ListCaptures(ctx context.Context) ([]archive.NameInfo, error) {
	i.mu.Lock()
	st, sc := i.st, i.sc
	i.mu.Unlock()
	if st == nil {
		return nil, errors.New("no storage registered with status page")
	}
	if sc == nil {
		return nil, errors.New("no scene registered with status page")
	}
	return archive.List(ctx, st, sc.Name())
}

// SceneStats returns the stats of the registered scene, if any
func (i *info) SceneStats() (scene.Stats, bool) {
	i.mu.Lock()
	sc := i.sc
	i.mu.Unlock()
	if sc == nil {
		return scene.Stats{}, false
	}
	return sc.Stats(), true
}

// Metadata returns the metadata of the registered scene
func (i *info) Metadata() map[string]map[string]string {
	i.mu.Lock()
	sc := i.sc
	i.mu.Unlock()
	if sc == nil {
		return map[string]map[string]string{}
	}
	return sc.Metadata()
}

// Clients returns the clients of the registered streamer
func (i *info) Clients() []streamer.ClientInfo {
	i.mu.Lock()
	s := i.streamer
	i.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Clients()
}

// SetStorage registers the capture storage with the status page
func SetStorage(st simpleblob.Interface) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.st = st
}

// SetScene registers the scene with the status page
func SetScene(sc *scene.Context) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.sc = sc
}

// SetStreamer registers the streamer with the status page
func SetStreamer(s *streamer.Streamer) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	gi.streamer = s
}
