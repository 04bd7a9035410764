package topics

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Next once the subscription is closed
var ErrClosed = errors.New("subscription closed")

// subscriptionID identifies a subscription within its Topic
type subscriptionID uint

// Subscription receives the values published to a Topic, like the client
// and flush events of the streamer. A regular subscription makes Publish
// wait for the receiver, a latest-value one only keeps the newest value.
// Close must be called when done.
type Subscription[T any] struct {
	id     subscriptionID
	latest bool

	mu    sync.Mutex
	topic *Topic[T]
	ch    <-chan T
}

// Channel returns the receive channel, nil after Close
func (s *Subscription[T]) Channel() <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Latest reports if only the most recent value is kept
func (s *Subscription[T]) Latest() bool {
	return s.latest
}

// Next waits for the next value. It returns ErrClosed if the subscription
// was closed, or the context error.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	ch := s.Channel()
	if ch == nil {
		return zero, ErrClosed
	}
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-ch:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	}
}

// Close unsubscribes from the Topic, which closes the channel. It is safe
// to call more than once and from any goroutine.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topic == nil {
		return
	}
	s.topic.unsubscribeID(s.id)
	s.ch = nil
	s.topic = nil
}
