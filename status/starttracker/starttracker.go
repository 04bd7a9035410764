// Package starttracker reports to healthz until the server has completed
// its startup: listening for clients and at least one flush cycle.
package starttracker

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wojas/go-healthz"
	"go.uber.org/atomic"
)

type StartTracker struct {
	Config         StartConfig
	listening      atomic.Bool
	firstFlush     atomic.Bool
	firstArchive   atomic.Bool
	archiveEnabled bool
	since          atomic.Time
	prefix         string
	logger         logrus.FieldLogger
}

// New creates a StartTracker and registers it with healthz. If archiving is
// disabled, no initial archive is required.
func New(sc StartConfig, prefix string, archiveEnabled bool) *StartTracker {
	st := newTracker(sc, prefix, archiveEnabled)
	st.RegisterTracker()
	return st
}

func newTracker(sc StartConfig, prefix string, archiveEnabled bool) *StartTracker {
	st := &StartTracker{
		Config:         sc.Validated(),
		prefix:         prefix,
		archiveEnabled: archiveEnabled,
		logger:         logrus.WithField("starttracker", prefix),
	}
	st.since.Store(time.Now())
	return st
}

func (st *StartTracker) trackerName() string {
	return fmt.Sprintf("%s_startup_in_progress", st.prefix)
}

// Completed reports if all startup steps have passed
func (st *StartTracker) Completed() bool {
	if st.archiveEnabled && !st.firstArchive.Load() {
		return false
	}
	return st.listening.Load() && st.firstFlush.Load()
}

func (st *StartTracker) RegisterTracker() {
	if st.Config.ReportMetadata {
		healthz.SetMeta("startupCompleted", false)
	}

	healthz.Register(st.trackerName(), st.Config.EvaluationInterval, func() error {
		err := st.check()
		if err == nil && st.Completed() {
			if st.Config.ReportMetadata {
				healthz.SetMeta("startupCompleted", true)
			}
			st.logger.Info("startup phase completed succesfully")

			// Startup phase is irrelevant after passing once
			healthz.Deregister(st.trackerName())
		}
		return err
	})

	st.logger.Info("registered tracker for startup phase")
}

func (st *StartTracker) check() error {
	if st.Completed() || !st.Config.ReportHealthz {
		return nil
	}
	pendingFor := time.Since(st.since.Load())
	if pendingFor >= st.Config.ErrorDuration {
		st.logger.Debugf("succesful startup pending after %s is violating the error threshold (%s)", pendingFor.Round(time.Second), st.Config.ErrorDuration)

		return fmt.Errorf("succesful startup pending after %s", pendingFor.Round(time.Second))
	} else if pendingFor >= st.Config.WarnDuration {
		st.logger.Debugf("succesful startup pending after %s is violating the warning threshold (%s)", pendingFor.Round(time.Second), st.Config.WarnDuration)

		return healthz.Warnf("succesful startup pending after %s", pendingFor.Round(time.Second))
	}
	return nil
}

func (st *StartTracker) SetListening() {
	st.listening.Store(true)

	st.logger.Debug("tracked websocket listener")
}

func (st *StartTracker) SetPassedFirstFlush() {
	if !st.firstFlush.Swap(true) {
		st.logger.Debug("tracked succesful first flush")
	}
}

func (st *StartTracker) SetPassedFirstArchive() {
	if !st.firstArchive.Swap(true) {
		st.logger.Debug("tracked succesful first archive")
	}
}
