package utils

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const MonitoredMutexDefaultLimit = 100 * time.Millisecond

// MonitoredMutex warns on unlocking when a lock was held too long.
// The scene mutation lock is held by the modeling engine and by the flush
// snapshot, so a long hold directly delays either of them.
type MonitoredMutex struct {
	mu       sync.Mutex
	lockTime time.Time

	Logger logrus.FieldLogger
	Name   string
	Limit  time.Duration // MonitoredMutexDefaultLimit if zero

	// OnSlow is called after unlocking when the limit was exceeded
	OnSlow func(held time.Duration)
}

func (m *MonitoredMutex) Lock() {
	m.mu.Lock()
	m.lockTime = time.Now()
}

func (m *MonitoredMutex) Unlock() {
	timeHeld := time.Since(m.lockTime)
	m.lockTime = time.Time{}
	m.mu.Unlock()

	limit := m.Limit
	if limit <= 0 {
		limit = MonitoredMutexDefaultLimit
	}
	if timeHeld > limit {
		// No panic, because time jumps, paused processes and sleep may
		// cause spikes.
		var caller string
		pc, fileName, fileLine, ok := runtime.Caller(1)
		if ok {
			details := runtime.FuncForPC(pc)
			if details != nil {
				caller = fmt.Sprintf("%s:%d (%s)", fileName, fileLine, details.Name())
			}
		}
		m.logger().WithFields(logrus.Fields{
			"lock_held": timeHeld,
			"limit":     limit,
			"lock_name": m.Name,
			"caller":    caller,
		}).Warn("Lock time limit exceeded")
		if m.OnSlow != nil {
			m.OnSlow(timeHeld)
		}
	}
}

func (m *MonitoredMutex) logger() logrus.FieldLogger {
	if m.Logger != nil {
		return m.Logger
	}
	return logrus.StandardLogger()
}
