package streamer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshstream/meshstream/scene"
)

// maybeArchive stores a capture of the snapshot in the background if the
// archive interval has passed and no capture is in progress.
func (s *Streamer) maybeArchive(ctx context.Context, snap *scene.Snapshot) {
	if s.opt.Archive == nil || s.c.ArchiveInterval <= 0 {
		return
	}
	now := time.Now()
	if now.Sub(s.lastArchive) < s.c.ArchiveInterval {
		return
	}
	if !s.archiving.CompareAndSwap(false, true) {
		s.l.Debug("Previous capture still in progress, skipping")
		return
	}
	s.lastArchive = now
	s.archiveWG.Add(1)
	go func() {
		defer s.archiveWG.Done()
		defer s.archiving.Store(false)
		if err := s.ArchiveOnce(ctx, snap, now); err != nil {
			s.l.WithError(err).Warn("Capture failed")
		}
	}()
}

// ArchiveOnce stores a capture of a snapshot and prunes old captures
func (s *Streamer) ArchiveOnce(ctx context.Context, snap *scene.Snapshot, now time.Time) error {
	err := s.archiveOnce(ctx, snap, now)
	if err != nil {
		metricArchiveFailures.WithLabelValues(s.sc.Name()).Inc()
	}
	if s.opt.ArchiveHealth != nil {
		if err != nil {
			s.opt.ArchiveHealth.AddFailure()
		} else {
			s.opt.ArchiveHealth.AddSuccess()
		}
	}
	return err
}

func (s *Streamer) archiveOnce(ctx context.Context, snap *scene.Snapshot, now time.Time) error {
	a := s.opt.Archive
	c, err := a.Capture(snap, s.sc.Metadata(), now)
	if err != nil {
		return err
	}
	ni, err := a.Store(ctx, c)
	if err != nil {
		return err
	}
	s.opt.Events.ArchiveStored.Publish(ni)
	if s.opt.Start != nil {
		s.opt.Start.SetPassedFirstArchive()
	}
	if s.c.ArchiveKeep > 0 {
		removed, err := a.Prune(ctx, s.c.ArchiveKeep)
		if err != nil {
			// Not a capture failure, the capture itself was stored
			s.l.WithError(err).Warn("Pruning old captures failed")
		} else if removed > 0 {
			s.l.WithFields(logrus.Fields{
				"removed": removed,
				"keep":    s.c.ArchiveKeep,
			}).Debug("Pruned old captures")
		}
	}
	return nil
}
