// Package scene holds the primitive store of one streamed scene.
//
// The modeling engine mutates a Context through AddPrimitive,
// UpdatePrimitive and friends. The flush scheduler periodically calls
// Snapshot, which hands over everything that changed since the previous
// snapshot. Both sides hold the Context lock only briefly: encoding and
// sending happen on the snapshot, outside the lock.
package scene

import (
	"fmt"
	"sort"
	"time"

	"cogentcore.org/core/math32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/stripe"
	"github.com/meshstream/meshstream/utils"
)

// Camera holds the initial view parameters sent to every client
type Camera struct {
	FOV    float32 // vertical field of view in degrees
	Near   float32
	Far    float32
	Eye    geometry.Vec3
	Center geometry.Vec3
	Up     geometry.Vec3
}

// DefaultCamera looks at the origin from the positive z axis
func DefaultCamera() Camera {
	return Camera{
		FOV:    45,
		Near:   0.1,
		Far:    1000,
		Eye:    math32.Vec3(0, 0, 10),
		Center: math32.Vec3(0, 0, 0),
		Up:     math32.Vec3(0, 1, 0),
	}
}

// Option configures a Context
type Option func(c *Context)

// WithStripeLimit sets the maximum number of local vertices per stripe.
// Values <= 0 or above the index range select the transport maximum.
func WithStripeLimit(limit int) Option {
	return func(c *Context) {
		c.limit = limit
	}
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Context) {
		c.logger = l
	}
}

// WithName sets the scene name used in logs and metrics
func WithName(name string) Option {
	return func(c *Context) {
		c.name = name
	}
}

// Context is the store of one scene. All methods are safe for concurrent
// use.
type Context struct {
	mu     utils.MonitoredMutex
	name   string
	bias   int32
	camera Camera
	limit  int
	logger logrus.FieldLogger

	lastID   PrimitiveID
	prims    map[PrimitiveID]*Primitive
	byName   map[string]PrimitiveID
	deleted  []PrimitiveID // removed since the last snapshot, after being flushed
	cleared  bool
	seq      uint64
	metadata map[string]map[string]string

	beforeStage func() // called unlocked before an update is staged, for tests
}

// New creates a Context. Bias is the origin of all index arrays passed in,
// 0 or 1.
func New(bias int, camera Camera, opts ...Option) (*Context, error) {
	if bias != 0 && bias != 1 {
		return nil, errors.Wrapf(ErrInvalidBias, "got %d", bias)
	}
	c := &Context{
		name:     "default",
		bias:     int32(bias),
		camera:   camera,
		logger:   logrus.StandardLogger(),
		prims:    make(map[PrimitiveID]*Primitive),
		byName:   make(map[string]PrimitiveID),
		metadata: make(map[string]map[string]string),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.WithField("scene", c.name)
	c.mu.Name = "scene"
	c.mu.Logger = c.logger
	c.mu.OnSlow = func(held time.Duration) {
		metricSlowLocks.WithLabelValues(c.name).Inc()
	}
	return c, nil
}

// Name returns the scene name
func (c *Context) Name() string {
	return c.name
}

// Bias returns the index bias
func (c *Context) Bias() int {
	return int(c.bias)
}

// Camera returns the initial camera
func (c *Context) Camera() Camera {
	return c.camera
}

// AddPrimitive creates a new primitive from staged fields. Vertices are
// required. If the name is empty, one is generated from the id.
// On error the Context is left unchanged.
func (c *Context) AddPrimitive(name string, kind geometry.Kind, attrs Attr, fields []FieldToken, opts ...PrimitiveOption) (PrimitiveID, error) {
	if !kind.Valid() {
		return 0, errors.Wrapf(ErrUnsupportedPrimitiveKind, "kind %d", kind)
	}
	if len(name) > MaxNameLength {
		metricMutationErrors.WithLabelValues(c.name, "add").Inc()
		return 0, errors.Wrapf(ErrNameTooLong, "%d bytes, maximum is %d", len(name), MaxNameLength)
	}
	p := &Primitive{
		Name:       name,
		Kind:       kind,
		Attrs:      attrs,
		Appearance: DefaultAppearance(),
	}
	for _, o := range opts {
		o(p)
	}
	if err := c.stage(p, fields, true); err != nil {
		metricMutationErrors.WithLabelValues(c.name, "add").Inc()
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.lastID + 1
	if p.Name == "" {
		p.Name = fmt.Sprintf("primitive-%d", id)
	}
	if _, exists := c.byName[p.Name]; exists {
		metricMutationErrors.WithLabelValues(c.name, "add").Inc()
		return 0, errors.Wrapf(ErrDuplicateName, "%q", p.Name)
	}
	c.lastID = id
	p.ID = id
	p.dirty = DirtyCreated | DirtyAttributes | DirtyFields
	c.prims[id] = p
	c.byName[p.Name] = id
	c.updateGauges()

	c.logger.WithFields(logrus.Fields{
		"id":      id,
		"name":    p.Name,
		"kind":    kind,
		"stripes": stripe.Describe(p.Stripes),
	}).Debug("Added primitive")
	return id, nil
}

// UpdatePrimitive replaces the given fields of an existing primitive.
// Derived normals and end caps are recomputed and the stripes rebuilt.
// On error the primitive is left unchanged.
//
// Staging runs without the lock, so snapshots and other primitives are not
// held up by a large update. If the primitive changed meanwhile, the update
// is staged again on the new state.
func (c *Context) UpdatePrimitive(id PrimitiveID, fields ...FieldToken) error {
	for attempt := 1; ; attempt++ {
		c.mu.Lock()
		p, ok := c.prims[id]
		if !ok {
			c.mu.Unlock()
			return errors.Wrapf(ErrUnknownPrimitive, "id %d", id)
		}
		// Staging works on a shallow copy. Arrays are never written in
		// place, so the original stays intact if staging fails.
		q := *p
		q.dirty = 0
		if attempt >= maxStageAttempts {
			err := c.installUpdate(p, &q, fields)
			c.mu.Unlock()
			return err
		}
		c.mu.Unlock()

		if c.beforeStage != nil {
			c.beforeStage()
		}
		if err := c.stage(&q, fields, false); err != nil {
			metricMutationErrors.WithLabelValues(c.name, "update").Inc()
			return err
		}

		c.mu.Lock()
		cur, ok := c.prims[id]
		if !ok {
			c.mu.Unlock()
			return errors.Wrapf(ErrUnknownPrimitive, "id %d", id)
		}
		if cur == p && cur.version == q.version {
			c.install(p, &q)
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
		metricUpdateRetries.WithLabelValues(c.name).Inc()
	}
}

// maxStageAttempts is the number of unlocked staging attempts of an update
// before it is staged under the lock.
const maxStageAttempts = 3

// installUpdate stages and installs with the lock held
func (c *Context) installUpdate(p, q *Primitive, fields []FieldToken) error {
	if err := c.stage(q, fields, false); err != nil {
		metricMutationErrors.WithLabelValues(c.name, "update").Inc()
		return err
	}
	c.install(p, q)
	return nil
}

// install replaces p with its staged copy q. Dirty flags set on p since
// the copy was taken are kept, as is the flushed state.
func (c *Context) install(p, q *Primitive) {
	if !stripe.SameLayout(p.Stripes, q.Stripes) {
		q.dirty |= DirtyLayout
	}
	q.dirty |= p.dirty
	q.flushed = p.flushed
	q.version = p.version + 1
	*p = *q
}

// SetAttributes replaces the attribute bitmask of a primitive
func (c *Context) SetAttributes(id PrimitiveID, attrs Attr) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.prims[id]
	if !ok {
		return errors.Wrapf(ErrUnknownPrimitive, "id %d", id)
	}
	if p.Attrs != attrs {
		p.Attrs = attrs
		p.dirty |= DirtyAttributes
		p.version++
	}
	return nil
}

// SetAppearance replaces the fixed appearance of a primitive. A face
// normal only affects normal computation when set on creation.
func (c *Context) SetAppearance(id PrimitiveID, a Appearance) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.prims[id]
	if !ok {
		return errors.Wrapf(ErrUnknownPrimitive, "id %d", id)
	}
	p.Appearance = a
	p.dirty |= DirtyAttributes
	p.version++
	return nil
}

// RemovePrimitive removes a primitive. Its name becomes available again,
// its id is never reused.
func (c *Context) RemovePrimitive(id PrimitiveID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.prims[id]
	if !ok {
		return errors.Wrapf(ErrUnknownPrimitive, "id %d", id)
	}
	delete(c.prims, id)
	delete(c.byName, p.Name)
	if p.flushed && !c.cleared {
		c.deleted = append(c.deleted, id)
	}
	c.updateGauges()
	c.logger.WithFields(logrus.Fields{
		"id":   id,
		"name": p.Name,
	}).Debug("Removed primitive")
	return nil
}

// ClearAll removes all primitives. Synced clients receive a single
// CLEAR_ALL instead of one delete per primitive.
func (c *Context) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.prims)
	c.prims = make(map[PrimitiveID]*Primitive)
	c.byName = make(map[string]PrimitiveID)
	c.deleted = nil
	c.cleared = true
	c.updateGauges()
	c.logger.WithField("removed", n).Info("Cleared scene")
}

// AddEndCaps attaches arrow heads to segments of a LINE primitive.
// Segment ids are 1-based; a positive id puts the head on the second
// endpoint of the segment, a negative id on the first one.
func (c *Context) AddEndCaps(id PrimitiveID, size float32, segments []int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.prims[id]
	if !ok {
		return errors.Wrapf(ErrUnknownPrimitive, "id %d", id)
	}
	if p.Kind != geometry.Line {
		return errors.Wrapf(ErrUnsupportedPrimitiveKind, "end caps on %s primitive %q", p.Kind, p.Name)
	}
	if len(p.Normals) > 0 {
		return errors.Wrapf(ErrUnsupportedPrimitiveKind, "end caps on line primitive %q with normals", p.Name)
	}
	if !(size > 0) {
		return errors.Wrapf(ErrInvalidFieldType, "end cap size %v", size)
	}
	req := endCapRequest{
		size:     size,
		segments: append([]int32(nil), segments...),
	}
	q := *p
	q.endCaps = append(append([]endCapRequest(nil), p.endCaps...), req)
	if err := c.deriveEndCaps(&q); err != nil {
		return err
	}
	q.dirty |= DirtyEndCaps
	q.version++
	*p = q
	return nil
}

// Lookup returns the id of a primitive by name
func (c *Context) Lookup(name string) (PrimitiveID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byName[name]
	return id, ok
}

// Get returns a copy of a primitive. The arrays are shared and must not be
// modified.
func (c *Context) Get(id PrimitiveID) (Primitive, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prims[id]
	if !ok {
		return Primitive{}, errors.Wrapf(ErrUnknownPrimitive, "id %d", id)
	}
	return *p, nil
}

// IDs returns the ids of all primitives in creation order
func (c *Context) IDs() []PrimitiveID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedIDs()
}

func (c *Context) sortedIDs() []PrimitiveID {
	ids := make([]PrimitiveID, 0, len(c.prims))
	for id := range c.prims {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetMetadata sets the free-text attributes shown for a primitive name.
// A nil map removes the entry. Metadata is not dirty tracked.
func (c *Context) SetMetadata(name string, attrs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attrs == nil {
		delete(c.metadata, name)
		return
	}
	m := make(map[string]string, len(attrs))
	for k, v := range attrs {
		m[k] = v
	}
	c.metadata[name] = m
}

// Metadata returns a copy of the metadata map
func (c *Context) Metadata() map[string]map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]map[string]string, len(c.metadata))
	for name, attrs := range c.metadata {
		m := make(map[string]string, len(attrs))
		for k, v := range attrs {
			m[k] = v
		}
		out[name] = m
	}
	return out
}

// Stats describes the size of the scene
type Stats struct {
	Primitives int `json:"primitives"`
	Stripes    int `json:"stripes"`
	Vertices   int `json:"vertices"`
	Owned      int `json:"owned_stripes"`
}

// Stats returns the current scene size
func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var st Stats
	for _, p := range c.prims {
		st.Primitives++
		st.Vertices += p.VertexCount()
		st.Stripes += len(p.Stripes)
		for i := range p.Stripes {
			if p.Stripes[i].Ownership == stripe.Owned {
				st.Owned++
			}
		}
	}
	return st
}

// updateGauges must be called with the lock held
func (c *Context) updateGauges() {
	metricPrimitives.WithLabelValues(c.name).Set(float64(len(c.prims)))
}
