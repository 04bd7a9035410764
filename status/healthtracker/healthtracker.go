// Package healthtracker reports repeated failures of a periodic activity,
// like a flush cycle or an archive upload, to healthz.
package healthtracker

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wojas/go-healthz"
	"go.uber.org/atomic"
)

type HealthTracker struct {
	Config   HealthConfig
	sequence atomic.Uint32
	since    atomic.Time
	prefix   string
	activity string
	logger   logrus.FieldLogger
}

// New creates a HealthTracker and registers its checks with healthz under
// names starting with prefix. The activity is used in error messages, like
// "failed to <activity> 3 consecutive times".
func New(hc HealthConfig, prefix string, activity string) *HealthTracker {
	ht := newTracker(hc, prefix, activity)
	ht.RegisterSequence()
	ht.RegisterDuration()
	return ht
}

func newTracker(hc HealthConfig, prefix string, activity string) *HealthTracker {
	ht := &HealthTracker{
		Config:   hc.Validated(),
		prefix:   prefix,
		activity: activity,
		logger:   logrus.WithField("healthtracker", prefix),
	}
	ht.sequence.Store(0)
	return ht
}

func (ht *HealthTracker) RegisterSequence() {
	healthz.Register(fmt.Sprintf("%s_failed_attempts", ht.prefix), ht.Config.EvaluationInterval, ht.checkSequence)
	ht.logger.Info("registered tracker for consecutive failures")
}

func (ht *HealthTracker) checkSequence() error {
	conseqFails := ht.sequence.Load()

	if conseqFails >= ht.Config.ErrorSequence {
		ht.logger.Warnf("%d consecutive failures is violating the error threshold (%d)", conseqFails, ht.Config.ErrorSequence)

		return fmt.Errorf("failed to %s %d consecutive times", ht.activity, conseqFails)
	} else if conseqFails >= ht.Config.WarnSequence {
		ht.logger.Warnf("%d consecutive failures is violating the warning threshold (%d)", conseqFails, ht.Config.WarnSequence)

		return healthz.Warnf("failed to %s %d consecutive times", ht.activity, conseqFails)
	}

	return nil
}

func (ht *HealthTracker) RegisterDuration() {
	healthz.Register(fmt.Sprintf("%s_failed_duration", ht.prefix), ht.Config.EvaluationInterval, ht.checkDuration)
	ht.logger.Info("registered tracker for failure duration")
}

func (ht *HealthTracker) checkDuration() error {
	conseqFails := ht.sequence.Load()
	if conseqFails == 0 {
		return nil
	}
	failingFor := time.Since(ht.since.Load())

	if failingFor >= ht.Config.ErrorDuration {
		ht.logger.Warnf("failure for %s is violating the error threshold (%s)", failingFor.Round(time.Second), ht.Config.ErrorDuration)

		return fmt.Errorf("failed to %s for %s", ht.activity, failingFor.Round(time.Second))
	} else if failingFor >= ht.Config.WarnDuration {
		ht.logger.Warnf("failure for %s is violating the warning threshold (%s)", failingFor.Round(time.Second), ht.Config.WarnDuration)

		return healthz.Warnf("failed to %s for %s", ht.activity, failingFor.Round(time.Second))
	}
	return nil
}

func (ht *HealthTracker) AddFailure() {
	failures := ht.sequence.Inc()
	if failures == 1 {
		ht.since.Store(time.Now())
	}
	ht.logger.Debugf("incremented consecutive failures to %d", failures)
}

func (ht *HealthTracker) AddSuccess() {
	if ht.sequence.Swap(0) > 0 {
		ht.logger.Info("recovered after failures")
	}
}

// Failures returns the number of consecutive failures
func (ht *HealthTracker) Failures() uint32 {
	return ht.sequence.Load()
}
