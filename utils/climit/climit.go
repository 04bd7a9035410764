// Package climit limits how many client sends run at the same time, which
// bounds the memory held by encoded frames during a flush.
package climit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// New creates a new ConcurrencyLimit with a given limit.
// The scene and limit names are used for Prometheus metrics.
func New(scene, name string, limit int, logger logrus.FieldLogger) *ConcurrencyLimit {
	if logger == nil {
		lr := logrus.New()
		lr.SetLevel(logrus.PanicLevel) // never reached
		logger = lr
	}
	logger = logger.WithField("limit_name", name)
	if limit < 1 {
		logger.Warnf(
			"Increasing concurrency limit from configured %d to minimum of 1", limit)
		limit = 1
	}
	l := &ConcurrencyLimit{
		name: name,
		labels: prometheus.Labels{
			"scene":      scene,
			"limit_name": name,
		},
		ch:  make(chan internalToken, limit),
		log: logger,
	}
	for i := 0; i < limit; i++ {
		l.ch <- internalToken{}
	}
	metricLimit.With(l.labels).Set(float64(limit))
	return l
}

// ConcurrencyLimit enforce a concurrency limit with tokens that need to be held
// by routines.
// A Token can be acquired by calling Acquire(), and MUST be released by
// calling Token.Release().
type ConcurrencyLimit struct {
	name   string
	labels prometheus.Labels
	ch     chan internalToken
	log    logrus.FieldLogger
}

type internalToken struct{}

// Acquire acquires a Token. It will block until a free Token is available,
// or return the context error if ctx is done first.
// You MUST call Token.Release() when you are done with the operation.
func (cl *ConcurrencyLimit) Acquire(ctx context.Context) (*Token, error) {
	metricWaiting.With(cl.labels).Inc()
	t0 := time.Now()
	var it internalToken
	select {
	case it = <-cl.ch:
	case <-ctx.Done():
		metricWaiting.With(cl.labels).Dec()
		return nil, ctx.Err()
	}
	dt := time.Since(t0)

	metricWaiting.With(cl.labels).Dec()
	metricActive.With(cl.labels).Inc()
	metricAcquiredTotal.With(cl.labels).Inc()
	metricWaitingSeconds.With(cl.labels).Observe(dt.Seconds())

	token := &Token{
		cl:    cl,
		token: it,
		time:  time.Now(),
	}
	if dt > time.Millisecond {
		cl.log.WithField("time_to_acquire", dt).Debug("Acquired token")
	}
	return token, nil
}

// Token represents the token that allows the caller to proceed with a limited
// operation.
type Token struct {
	cl   *ConcurrencyLimit
	time time.Time

	mu       sync.Mutex
	released bool
	token    internalToken
}

// Release releases the Token.
// It can safely be called more than once, even from different goroutines.
// It returns how long the Token was held, or 0 if it had already been released.
func (t *Token) Release() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return 0
	}
	t.cl.ch <- t.token
	t.released = true
	dt := time.Since(t.time)
	metricActive.With(t.cl.labels).Dec()
	metricActiveSeconds.With(t.cl.labels).Observe(dt.Seconds())
	t.cl = nil
	return dt
}
