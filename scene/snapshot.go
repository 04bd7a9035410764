package scene

import (
	"github.com/meshstream/meshstream/geometry"
)

// PrimitiveState is a primitive as of a snapshot, together with what
// changed since the previous snapshot. The arrays are shared with the
// Context and must be treated as read-only.
type PrimitiveState struct {
	*Primitive
	Dirty DirtyMask
}

// Created reports if synced clients have not seen the primitive yet
func (ps PrimitiveState) Created() bool {
	return ps.Dirty.Has(DirtyCreated)
}

// DirtyRoles returns the per-stripe fields that need an edit, in wire order
func (ps PrimitiveState) DirtyRoles() []geometry.Role {
	var roles []geometry.Role
	for _, r := range geometry.Roles {
		if ps.Dirty.Has(RoleDirty(r)) {
			roles = append(roles, r)
		}
	}
	return roles
}

// Snapshot is an immutable view of a Context taken by the flush scheduler.
// It contains every primitive, so it can be used for a full encode, and the
// changes since the previous snapshot for a delta encode.
type Snapshot struct {
	Seq    uint64
	Scene  string
	Bias   int32
	Limit  int // configured stripe limit, <= 0 for the transport maximum
	Camera Camera

	// Cleared is set if ClearAll was called since the previous snapshot.
	// Deleted is always empty in that case.
	Cleared bool
	Deleted []PrimitiveID

	// Primitives are sorted by id, which is creation order
	Primitives []PrimitiveState
}

// Changed reports if a synced client needs to receive anything
func (s *Snapshot) Changed() bool {
	if s.Cleared || len(s.Deleted) > 0 {
		return true
	}
	for _, ps := range s.Primitives {
		if ps.Dirty != 0 {
			return true
		}
	}
	return false
}

// Snapshot hands over all changes since the previous snapshot and resets
// the dirty state. The lock is only held while the primitive headers are
// copied.
func (c *Context) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	s := &Snapshot{
		Seq:        c.seq,
		Scene:      c.name,
		Bias:       c.bias,
		Limit:      c.limit,
		Camera:     c.camera,
		Cleared:    c.cleared,
		Deleted:    c.deleted,
		Primitives: make([]PrimitiveState, 0, len(c.prims)),
	}
	for _, id := range c.sortedIDs() {
		p := c.prims[id]
		cp := *p
		s.Primitives = append(s.Primitives, PrimitiveState{
			Primitive: &cp,
			Dirty:     p.dirty,
		})
		p.dirty = 0
		p.flushed = true
	}
	c.cleared = false
	c.deleted = nil
	metricSnapshots.WithLabelValues(c.name).Inc()
	return s
}
