package utils

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/sirupsen/logrus"
)

// SleepContext sleeps for given duration. If the context closes in the
// meantime, it returns immediately with a context.Canceled error.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Canceled
	case <-t.C:
		return nil
	}
}

// SleepContextPerturb sleeps for given duration like SleepContext, but it
// perturbs the duration with a 20% random component, so that the demo
// animation and periodic archives do not line up with the flush ticks.
func SleepContextPerturb(ctx context.Context, d time.Duration) error {
	r := rand.Intn(400)
	// Random duration between 80% and 120% of original
	d = time.Duration(800+r) * d / 1000
	return SleepContext(ctx, d)
}

// IsCanceled checks if the context has been canceled.
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// DisplayHex returns a hex preview of at most max bytes of b, followed by
// the total size if the preview was truncated.
func DisplayHex(b []byte, max int) string {
	if max <= 0 || len(b) <= max {
		return fmt.Sprintf("[% x]", b)
	}
	return fmt.Sprintf("[% x ...] (%d bytes)", b[:max], len(b))
}

// TimeDiff returns the difference between two times, rounded to milliseconds.
func TimeDiff(t1, t0 time.Time) time.Duration {
	return t1.Sub(t0).Round(time.Millisecond)
}

// GC runs the garbage collector and logs some memory stats.
// Called after a scene was cleared, which can release large stripe copies.
func GC() time.Duration {
	var before, after runtime.MemStats
	t0 := time.Now()
	runtime.ReadMemStats(&before)
	runtime.GC()
	runtime.ReadMemStats(&after)
	t1 := time.Now()
	dt := TimeDiff(t1, t0)
	freed := after.Frees - before.Frees
	logrus.WithFields(logrus.Fields{
		"time_gc":      dt,
		"freed":        datasize.ByteSize(freed),
		"alloc_before": datasize.ByteSize(before.Alloc),
		"alloc_after":  datasize.ByteSize(after.Alloc),
	}).Debug("GC stats")
	return dt
}
