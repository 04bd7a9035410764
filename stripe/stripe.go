// Package stripe partitions primitive geometry into chunks whose local
// vertex count fits the 16-bit index range of the transport.
//
// Every stripe is independently renderable: its local index arrays only
// reference vertices stored in the same stripe. The Global map of a stripe
// records which primitive vertex each local vertex is a copy of, so that
// later edits of the primitive can be mapped onto the existing stripes.
package stripe

import (
	"github.com/meshstream/meshstream/geometry"
)

const (
	// MaxIndexRange is the number of distinct values a 16-bit local index can
	// address.
	MaxIndexRange = 65536

	// RestartIndex is reserved in triangle stripes, which is why those hold
	// at most MaxIndexRange-1 vertices.
	RestartIndex = 0xFFFF

	// MaxStripes is the number of stripes a primitive can have, stripe
	// numbers are 16-bit on the wire.
	MaxStripes = 65536
)

// Ownership tells if the arrays of a Stripe alias the primitive arrays or
// are copies owned by the stripe.
type Ownership uint8

const (
	// Shared stripes alias the primitive arrays. Only used when the whole
	// primitive fits in a single stripe.
	Shared Ownership = iota
	// Owned stripes hold their own copies of the vertex attributes.
	Owned
)

func (o Ownership) String() string {
	if o == Shared {
		return "shared"
	}
	return "owned"
}

// Geometry is the input of Split. Index arrays are biased by Bias.
// Normals and Colors are either empty or hold one value triple per vertex.
type Geometry struct {
	Kind         geometry.Kind
	Bias         int32
	Vertices     []float32
	Normals      []float32
	Colors       []uint8
	Indices      []int32
	PointIndices []int32
	LineIndices  []int32
}

// VertexCount returns the number of vertices in the geometry
func (g *Geometry) VertexCount() int {
	return len(g.Vertices) / 3
}

// Stripe is one self-contained partition of a primitive.
// Stripes are never modified after Split returns them.
type Stripe struct {
	Ownership Ownership

	Vertices []float32
	Normals  []float32 // empty if the primitive has no normals
	Colors   []uint8   // empty if the primitive has no per-vertex colors

	// Global maps local vertex i to its index in the primitive.
	// It is nil for Shared stripes, where the mapping is the identity.
	Global []int32

	// Indices is nil for primitives without connectivity, whatever the
	// number of stripes. Their vertices are drawn in order as runs of
	// Kind.Arity(). In an indexed primitive, a stripe without indices only
	// holds vertices that no index refers to.
	Indices      []uint16
	PointIndices []uint16
	LineIndices  []uint16

	// DecorationStart is the first local vertex that is a duplicate added to
	// resolve line decoration pairs. Equal to VertexCount() if there are none.
	DecorationStart int
}

// VertexCount returns the number of local vertices
func (s *Stripe) VertexCount() int {
	return len(s.Vertices) / 3
}

// GlobalIndex returns the primitive vertex index of local vertex i
func (s *Stripe) GlobalIndex(i int) int {
	if s.Global == nil {
		return i
	}
	return int(s.Global[i])
}

// GlobalMap returns the global index of every local vertex
func (s *Stripe) GlobalMap() []int32 {
	if s.Global != nil {
		return s.Global
	}
	m := make([]int32, s.VertexCount())
	for i := range m {
		m[i] = int32(i)
	}
	return m
}

// EffectiveLimit returns the maximum number of local vertices per stripe for
// a primitive kind, given the configured limit.
func EffectiveLimit(kind geometry.Kind, limit int) int {
	max := MaxIndexRange
	if kind == geometry.Triangle {
		max = MaxIndexRange - 1
	}
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

// SameLayout reports if two stripe lists partition the vertices the same
// way, which means that per-stripe field edits can be applied to a client
// that holds stripes a while the store now holds stripes b.
func SameLayout(a, b []Stripe) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		sa, sb := &a[i], &b[i]
		if sa.Ownership != sb.Ownership ||
			sa.VertexCount() != sb.VertexCount() ||
			sa.DecorationStart != sb.DecorationStart {
			return false
		}
		if sa.Global == nil || sb.Global == nil {
			if sa.Global != nil || sb.Global != nil {
				return false
			}
			continue
		}
		for j := range sa.Global {
			if sa.Global[j] != sb.Global[j] {
				return false
			}
		}
	}
	return true
}
