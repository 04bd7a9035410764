package streamer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/meshstream/meshstream/frame"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/streamer/events"
	"github.com/meshstream/meshstream/utils"
)

// encoded is the frame sequence of one encoding plan, shared by all clients
// that need it
type encoded struct {
	kind   string // "full" or "delta"
	frames [][]byte
	stats  frame.Stats
}

func (s *Streamer) encode(snap *scene.Snapshot, full bool) (*encoded, error) {
	enc := &encoded{kind: "delta"}
	if full {
		enc.kind = "full"
	}
	e, err := frame.NewEncoder(s.c.MaxFrameSize, func(f []byte) error {
		enc.frames = append(enc.frames, append([]byte(nil), f...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if full {
		err = frame.WriteFull(e, snap)
	} else {
		err = frame.WriteDelta(e, snap)
	}
	if err != nil {
		return nil, err
	}
	enc.stats = e.Stats()
	return enc, nil
}

// Run runs flush cycles every flush interval until the context is done.
// It only returns the context error.
func (s *Streamer) Run(ctx context.Context) error {
	s.l.WithFields(logrus.Fields{
		"flush_interval":   s.c.FlushInterval,
		"max_frame_size":   s.c.MaxFrameSize.HumanReadable(),
		"archive_interval": s.c.ArchiveInterval,
	}).Info("Streamer running")

	defer s.archiveWG.Wait()
	t := time.NewTicker(s.c.FlushInterval)
	defer t.Stop()
	for {
		snap, _, err := s.flush(ctx)
		if err != nil {
			if utils.IsCanceled(ctx) {
				return ctx.Err()
			}
			s.l.WithError(err).Error("Flush failed")
		} else {
			s.maybeArchive(ctx, snap)
		}
		if snap.Cleared {
			utils.GC()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// FlushOnce runs a single flush cycle: it takes a snapshot of the scene, sends
// the full scene to new clients and the changes to synced clients. Clients
// whose send fails are closed and removed.
func (s *Streamer) FlushOnce(ctx context.Context) (events.FlushInfo, error) {
	_, info, err := s.flush(ctx)
	return info, err
}

func (s *Streamer) flush(ctx context.Context) (*scene.Snapshot, events.FlushInfo, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	t0 := time.Now()
	snap := s.sc.Snapshot()
	info := events.FlushInfo{Seq: snap.Seq}
	name := s.sc.Name()
	metricFlushes.WithLabelValues(name).Inc()

	// Decide per client before encoding, so that both plans are encoded at
	// most once
	states := s.clientStates()
	fullFor := make(map[*clientState]bool, len(states))
	needFull, needDelta := false, false
	for _, cs := range states {
		full := !cs.synced.Load() || cs.resync.Swap(false)
		fullFor[cs] = full
		if full {
			needFull = true
		} else {
			needDelta = true
		}
	}
	if !snap.Changed() {
		needDelta = false
	}
	if len(states) == 0 {
		if s.opt.Start != nil {
			s.opt.Start.SetPassedFirstFlush()
		}
		return snap, info, nil
	}

	var full, delta *encoded
	var err error
	if needFull {
		full, err = s.encode(snap, true)
	}
	if err == nil && needDelta {
		delta, err = s.encode(snap, false)
	}
	if err != nil {
		// The changes of this snapshot are lost for synced clients
		for _, cs := range states {
			cs.synced.Store(false)
		}
		return snap, info, err
	}

	type result struct {
		cs  *clientState
		enc *encoded
		err error
	}
	results := make([]result, len(states))
	eg, gctx := errgroup.WithContext(ctx)
	for i, cs := range states {
		enc := delta
		if fullFor[cs] {
			enc = full
		}
		if enc == nil {
			continue // synced and nothing changed
		}
		results[i].cs = cs
		results[i].enc = enc
		eg.Go(func() error {
			token, err := s.limit.Acquire(gctx)
			if err != nil {
				return err
			}
			defer token.Release()
			results[i].err = s.send(cs, enc)
			return nil // one failing client does not affect the others
		})
	}
	if err := eg.Wait(); err != nil {
		return snap, info, err
	}

	for _, r := range results {
		if r.cs == nil {
			continue
		}
		if r.err != nil {
			info.Dropped++
			s.drop(r.cs, r.err)
			continue
		}
		if r.enc.kind == "full" {
			info.Full++
			r.cs.synced.Store(true)
		} else {
			info.Delta++
		}
		info.Frames += r.enc.stats.Frames
		info.Bytes += r.enc.stats.Bytes
		metricFrames.WithLabelValues(name, r.enc.kind).Add(float64(r.enc.stats.Frames))
		metricBytes.WithLabelValues(name, r.enc.kind).Add(float64(r.enc.stats.Bytes))
	}

	info.Duration = time.Since(t0)
	metricFlushSeconds.WithLabelValues(name).Observe(info.Duration.Seconds())
	if s.opt.FlushHealth != nil {
		if info.Dropped > 0 {
			s.opt.FlushHealth.AddFailure()
		} else {
			s.opt.FlushHealth.AddSuccess()
		}
	}
	if s.opt.Start != nil && info.Dropped == 0 {
		s.opt.Start.SetPassedFirstFlush()
	}
	if info.Full+info.Delta+info.Dropped > 0 {
		s.l.WithFields(logrus.Fields{
			"seq":     info.Seq,
			"full":    info.Full,
			"delta":   info.Delta,
			"dropped": info.Dropped,
			"frames":  info.Frames,
			"bytes":   info.Bytes,
			"time":    info.Duration.Round(time.Microsecond),
		}).Debug("Flushed")
		s.opt.Events.Flushed.Publish(info)
	}
	return snap, info, nil
}

// send sends all frames of a plan to one client
func (s *Streamer) send(cs *clientState, enc *encoded) error {
	for i, f := range enc.frames {
		if err := cs.c.Send(f); err != nil {
			return fmt.Errorf("%w: %s frame %d/%d: %w",
				ErrTransportWriteFailed, enc.kind, i+1, len(enc.frames), err)
		}
		cs.frames.Inc()
		cs.bytes.Add(int64(len(f)))
	}
	return nil
}

// drop removes and closes a client after a failed send
func (s *Streamer) drop(cs *clientState, err error) {
	cs.l.WithError(err).Warn("Dropping client after failed send")
	metricSendFailures.WithLabelValues(s.sc.Name()).Inc()
	s.RemoveClient(cs.c.ID(), "send failed")
	if err := cs.c.Close(); err != nil {
		cs.l.WithError(err).Debug("Close failed")
	}
}
