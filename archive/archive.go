package archive

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/PowerDNS/simpleblob"
	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/meshstream/meshstream/frame"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/utils"
)

var ErrNotFound = errors.New("no capture found")

// Archive stores and loads captures of one scene
type Archive struct {
	st           simpleblob.Interface
	scene        string
	instance     string
	hostname     string
	generation   string
	maxFrameSize datasize.ByteSize
	l            logrus.FieldLogger
}

// New creates an Archive for the captures of a scene taken by this instance.
// Captures of all instances can be listed and loaded.
func New(st simpleblob.Interface, sceneName, instance string, maxFrameSize datasize.ByteSize, l logrus.FieldLogger) *Archive {
	hostname, _ := os.Hostname()
	return &Archive{
		st:           st,
		scene:        sceneName,
		instance:     instance,
		hostname:     hostname,
		generation:   uuid.New().String(),
		maxFrameSize: maxFrameSize,
		l:            l.WithField("component", "archive"),
	}
}

// Capture encodes the full scene of a snapshot the way a new client would
// receive it
func (a *Archive) Capture(s *scene.Snapshot, metadata map[string]map[string]string, now time.Time) (*Capture, error) {
	c := &Capture{
		FormatVersion: CurrentFormatVersion,
		Meta: Meta{
			Scene:         s.Scene,
			InstanceID:    a.instance,
			Hostname:      a.hostname,
			GenerationID:  a.generation,
			TimestampNano: uint64(now.UnixNano()),
			Primitives:    uint32(len(s.Primitives)),
			Seq:           s.Seq,
		},
		Metadata: metadata,
	}
	e, err := frame.NewEncoder(a.maxFrameSize, func(f []byte) error {
		c.Frames = append(c.Frames, append([]byte(nil), f...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := frame.WriteFull(e, s); err != nil {
		return nil, errors.Wrap(err, "encode capture")
	}
	return c, nil
}

// Store compresses and stores a capture
func (a *Archive) Store(ctx context.Context, c *Capture) (NameInfo, error) {
	t0 := time.Now()
	data, stats, err := DumpData(c)
	if err != nil {
		return NameInfo{}, err
	}
	name := Name(a.scene, a.instance, c.Meta.Time())
	metricStoreCalls.WithLabelValues(a.scene).Inc()
	if err := a.st.Store(ctx, name, data); err != nil {
		metricStoreFailed.WithLabelValues(a.scene).Inc()
		return NameInfo{}, errors.Wrapf(err, "store %s", name)
	}
	metricStoreBytes.WithLabelValues(a.scene).Add(float64(len(data)))
	metricLastTimestamp.WithLabelValues(a.scene).Set(float64(t0.Unix()))

	a.l.WithFields(logrus.Fields{
		"name":       name,
		"frames":     len(c.Frames),
		"primitives": c.Meta.Primitives,
		"size_pb":    stats.ProtobufSize.HumanReadable(),
		"size":       stats.CompressedSize.HumanReadable(),
		"time":       utils.TimeDiff(time.Now(), t0),
	}).Info("Stored capture")

	ni, err := ParseName(name)
	if err != nil {
		return NameInfo{}, err // Should never happen
	}
	ni.Size = int64(len(data))
	return ni, nil
}

// List returns the captures of the scene, oldest first. Blobs with names
// that are not capture names are ignored.
func (a *Archive) List(ctx context.Context) ([]NameInfo, error) {
	return List(ctx, a.st, a.scene)
}

// List returns the captures in storage with an optional scene filter, oldest
// first.
func List(ctx context.Context, st simpleblob.Interface, sceneName string) ([]NameInfo, error) {
	prefix := ""
	if sceneName != "" {
		prefix = Prefix(sceneName)
	}
	ls, err := st.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	infos := lo.FilterMap(ls, func(b simpleblob.Blob, _ int) (NameInfo, bool) {
		ni, err := ParseName(b.Name)
		if err != nil {
			return ni, false
		}
		ni.Size = b.Size
		return ni, true
	})
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Timestamp.Before(infos[j].Timestamp)
	})
	return infos, nil
}

// Load loads a capture by name
func Load(ctx context.Context, st simpleblob.Interface, name string) (*Capture, error) {
	data, err := st.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	c, err := LoadData(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	return c, nil
}

// Latest loads the most recent capture of a scene, of any instance
func Latest(ctx context.Context, st simpleblob.Interface, sceneName string) (*Capture, NameInfo, error) {
	infos, err := List(ctx, st, sceneName)
	if err != nil {
		return nil, NameInfo{}, err
	}
	if len(infos) == 0 {
		return nil, NameInfo{}, errors.Wrapf(ErrNotFound, "scene %q", sceneName)
	}
	ni := infos[len(infos)-1]
	c, err := Load(ctx, st, ni.FullName)
	return c, ni, err
}

// Prune removes all but the newest keep captures of this instance. Captures
// of other instances are left alone.
func (a *Archive) Prune(ctx context.Context, keep int) (int, error) {
	infos, err := a.List(ctx)
	if err != nil {
		return 0, err
	}
	own := lo.Filter(infos, func(ni NameInfo, _ int) bool {
		return ni.InstanceID == a.instance
	})
	if len(own) <= keep {
		return 0, nil
	}
	removed := 0
	for _, ni := range own[:len(own)-keep] {
		if err := a.st.Delete(ctx, ni.FullName); err != nil {
			a.l.WithError(err).WithField("name", ni.FullName).Warn("Could not delete old capture")
			continue
		}
		removed++
	}
	metricPruned.WithLabelValues(a.scene).Add(float64(removed))
	return removed, nil
}
