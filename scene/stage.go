package scene

import (
	"github.com/pkg/errors"

	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/stripe"
)

// stage applies fields to p and recomputes all derived state. It only
// replaces slices of p, so a shallow copy of a live primitive can be staged
// and discarded on error.
func (c *Context) stage(p *Primitive, fields []FieldToken, create bool) error {
	var (
		dirty  DirtyMask
		colors *FieldToken
	)
	for i := range fields {
		f := &fields[i]
		if f.kind != p.Kind {
			return errors.Wrapf(ErrInvalidFieldType, "%s staged for %s, primitive is %s",
				f.role, f.kind, p.Kind)
		}
		switch f.role {
		case geometry.RoleVertices:
			p.Vertices = f.floats
		case geometry.RoleNormals:
			p.Normals = f.floats
			p.derivedNormals = false
		case geometry.RoleColors:
			colors = f
		case geometry.RoleIndices:
			p.Indices = f.ints
		case geometry.RolePointIndices:
			p.PointIndices = f.ints
		case geometry.RoleLineIndices:
			p.LineIndices = f.ints
		default:
			return errors.Wrapf(ErrInvalidFieldType, "role %s cannot be set", f.role)
		}
		dirty |= RoleDirty(f.role)
	}
	if len(p.Vertices) == 0 {
		return errors.Wrapf(ErrMissingVertices, "%q", p.Name)
	}
	n := p.VertexCount()
	structural := dirty.Has(DirtyVertices | DirtyIndices)

	if colors != nil {
		switch len(colors.colors) {
		case 3 * n:
			p.Colors = colors.colors
		case 0:
			p.Colors = nil
		case 3:
			// Uniform color
			p.Colors = nil
			p.Appearance = p.Appearance.withColor(p.Kind, Color{colors.colors[0], colors.colors[1], colors.colors[2]})
			dirty |= DirtyAttributes
		default:
			return errors.Wrapf(ErrLengthMismatch, "%d colors for %d vertices", len(colors.colors)/3, n)
		}
	} else if len(p.Colors) > 0 && len(p.Colors) != 3*n {
		return errors.Wrapf(ErrLengthMismatch, "%d existing colors for %d vertices", len(p.Colors)/3, n)
	}

	if err := checkIndices(p, c.bias); err != nil {
		return err
	}

	switch {
	case dirty.Has(DirtyNormals):
		if len(p.Normals) > 0 && len(p.Normals) != 3*n {
			return errors.Wrapf(ErrLengthMismatch, "%d normals for %d vertices", len(p.Normals)/3, n)
		}
	case create && p.Kind == geometry.Triangle && len(p.Normals) == 0 && p.Appearance.FaceNormal == nil:
		p.derivedNormals = true
		p.Normals = deriveNormals(p, c.bias)
		dirty |= DirtyNormals
	case p.derivedNormals && structural:
		p.Normals = deriveNormals(p, c.bias)
		dirty |= DirtyNormals
	case len(p.Normals) > 0 && len(p.Normals) != 3*n:
		return errors.Wrapf(ErrLengthMismatch, "%d existing normals for %d vertices", len(p.Normals)/3, n)
	}

	if len(p.endCaps) > 0 {
		if len(p.Normals) > 0 {
			return errors.Wrapf(ErrUnsupportedPrimitiveKind, "normals on line primitive %q with end caps", p.Name)
		}
		if structural {
			if err := c.deriveEndCaps(p); err != nil {
				return err
			}
			dirty |= DirtyEndCaps
		}
	}

	stripes, err := stripe.Split(stripe.Geometry{
		Kind:         p.Kind,
		Bias:         c.bias,
		Vertices:     p.Vertices,
		Normals:      p.Normals,
		Colors:       p.Colors,
		Indices:      p.Indices,
		PointIndices: p.PointIndices,
		LineIndices:  p.LineIndices,
	}, c.limit)
	if err != nil {
		metricPartitionFailures.WithLabelValues(c.name).Inc()
		return errors.Wrapf(err, "primitive %q", p.Name)
	}
	metricStripesBuilt.WithLabelValues(c.name).Add(float64(len(stripes)))
	p.Stripes = stripes
	p.dirty |= dirty
	return nil
}

func checkIndices(p *Primitive, bias int32) error {
	n := int32(p.VertexCount())
	for _, list := range []struct {
		role geometry.Role
		idx  []int32
	}{
		{geometry.RoleIndices, p.Indices},
		{geometry.RolePointIndices, p.PointIndices},
		{geometry.RoleLineIndices, p.LineIndices},
	} {
		for i, idx := range list.idx {
			if v := idx - bias; v < 0 || v >= n {
				return errors.Wrapf(ErrIndexOutOfRange, "%s[%d] = %d with %d vertices and bias %d",
					list.role, i, idx, n, bias)
			}
		}
	}
	return nil
}

func deriveNormals(p *Primitive, bias int32) []float32 {
	if len(p.Indices) == 0 {
		return geometry.UnindexedNormals(p.Vertices)
	}
	indices := p.Indices
	if bias != 0 {
		indices = make([]int32, len(p.Indices))
		for i, idx := range p.Indices {
			indices[i] = idx - bias
		}
	}
	return geometry.IndexedNormals(p.Vertices, indices)
}

// segment returns the zero-based endpoints of 0-based line segment s
func segment(p *Primitive, bias int32, s int) (a, b int) {
	if len(p.Indices) > 0 {
		return int(p.Indices[2*s] - bias), int(p.Indices[2*s+1] - bias)
	}
	return 2 * s, 2*s + 1
}

func segmentCount(p *Primitive) int {
	if len(p.Indices) > 0 {
		return len(p.Indices) / 2
	}
	return p.VertexCount() / 2
}

// deriveEndCaps recomputes the end cap geometry of all requests
func (c *Context) deriveEndCaps(p *Primitive) error {
	count := segmentCount(p)
	var vertices, normals []float32
	for _, req := range p.endCaps {
		for _, id := range req.segments {
			mag := id
			if mag < 0 {
				mag = -mag
			}
			if mag == 0 || int(mag) > count {
				return errors.Wrapf(ErrIndexOutOfRange, "segment %d of %q with %d segments",
					id, p.Name, count)
			}
			a, b := segment(p, c.bias, int(mag)-1)
			tail, head := geometry.At(p.Vertices, a), geometry.At(p.Vertices, b)
			if id < 0 {
				tail, head = head, tail
			}
			v, n := geometry.EndCap(tail, head, req.size)
			vertices = append(vertices, v...)
			normals = append(normals, n...)
		}
	}
	p.EndCapVertices = vertices
	p.EndCapNormals = normals
	return nil
}

// withColor returns a copy with the fixed color of kind set
func (a Appearance) withColor(kind geometry.Kind, col Color) Appearance {
	switch kind {
	case geometry.Point:
		a.PointColor = col
	case geometry.Line:
		a.LineColor = col
	default:
		a.FrontColor = col
	}
	return a
}
