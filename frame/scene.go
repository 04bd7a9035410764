package frame

import (
	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/stripe"
)

// WriteFull encodes the complete scene for a client that has not received
// anything yet: INIT, every primitive with all its stripes, END_OF_FRAME.
func WriteFull(e *Encoder, s *scene.Snapshot) error {
	limit := s.Limit
	if limit <= 0 || limit > stripe.MaxIndexRange {
		limit = stripe.MaxIndexRange
	}
	err := e.Init(Init{
		Version: Version,
		Bias:    uint8(s.Bias),
		Limit:   uint32(limit),
		Camera:  s.Camera,
	})
	if err != nil {
		return err
	}
	for _, ps := range s.Primitives {
		if err := writeCreate(e, ps); err != nil {
			return err
		}
	}
	return e.EndOfFrame(s.Seq)
}

// WriteDelta encodes the changes of a snapshot for a client that received
// all previous snapshots. Nothing is written if the snapshot has no changes.
// A primitive is always created before any of its fields are edited.
func WriteDelta(e *Encoder, s *scene.Snapshot) error {
	if !s.Changed() {
		return nil
	}
	if s.Cleared {
		// The client discards everything, all survivors are new to it
		if err := e.ClearAll(); err != nil {
			return err
		}
		for _, ps := range s.Primitives {
			if err := writeCreate(e, ps); err != nil {
				return err
			}
		}
		return e.EndOfFrame(s.Seq)
	}

	for _, id := range s.Deleted {
		if err := e.Delete(uint32(id)); err != nil {
			return err
		}
	}
	for _, ps := range s.Primitives {
		var err error
		switch {
		case ps.Dirty == 0:
			continue
		case ps.Created():
			err = writeCreate(e, ps)
		case ps.Dirty.Has(scene.DirtyLayout):
			// Stripes were repartitioned, per-stripe edits cannot be mapped
			if err = e.Delete(uint32(ps.ID)); err == nil {
				err = writeCreate(e, ps)
			}
		default:
			err = writeEdits(e, ps)
		}
		if err != nil {
			return err
		}
	}
	return e.EndOfFrame(s.Seq)
}

func writeCreate(e *Encoder, ps scene.PrimitiveState) error {
	err := e.Create(Create{
		ID:         uint32(ps.ID),
		Kind:       ps.Kind,
		Name:       ps.Name,
		Attrs:      ps.Attrs,
		Stripes:    uint32(len(ps.Stripes)),
		Appearance: ps.Appearance,
	})
	if err != nil {
		return err
	}
	for i := range ps.Stripes {
		for _, role := range geometry.Roles {
			data, n := fieldData(ps.Primitive, i, role)
			if n == 0 {
				continue
			}
			if err := e.Array(OpStripeData, uint32(ps.ID), i, role, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeEdits(e *Encoder, ps scene.PrimitiveState) error {
	if ps.Dirty.Has(scene.DirtyAttributes) {
		err := e.SetAttributes(SetAttributes{
			ID:         uint32(ps.ID),
			Attrs:      ps.Attrs,
			Appearance: ps.Appearance,
		})
		if err != nil {
			return err
		}
	}
	roles := ps.DirtyRoles()
	for i := range ps.Stripes {
		for _, role := range roles {
			if isEndCap(role) && i > 0 {
				continue
			}
			data, _ := fieldData(ps.Primitive, i, role)
			if err := e.Array(OpEditField, uint32(ps.ID), i, role, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func isEndCap(role geometry.Role) bool {
	return role == geometry.RoleEndCapVertices || role == geometry.RoleEndCapNormals
}

// fieldData returns the wire array of a stripe field and its length.
// End caps belong to the primitive and are sent with stripe 0.
func fieldData(p *scene.Primitive, i int, role geometry.Role) (interface{}, int) {
	st := &p.Stripes[i]
	switch role {
	case geometry.RoleVertices:
		return st.Vertices, len(st.Vertices)
	case geometry.RoleNormals:
		return st.Normals, len(st.Normals)
	case geometry.RoleColors:
		return st.Colors, len(st.Colors)
	case geometry.RoleIndices:
		return st.Indices, len(st.Indices)
	case geometry.RolePointIndices:
		return st.PointIndices, len(st.PointIndices)
	case geometry.RoleLineIndices:
		return st.LineIndices, len(st.LineIndices)
	case geometry.RoleEndCapVertices:
		if i > 0 {
			return []float32(nil), 0
		}
		return p.EndCapVertices, len(p.EndCapVertices)
	case geometry.RoleEndCapNormals:
		if i > 0 {
			return []float32(nil), 0
		}
		return p.EndCapNormals, len(p.EndCapNormals)
	}
	return []float32(nil), 0
}
