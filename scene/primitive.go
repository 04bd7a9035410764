package scene

import (
	"strings"

	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/stripe"
)

// PrimitiveID identifies a primitive within a Context. IDs are never reused.
type PrimitiveID uint32

// MaxNameLength is the longest primitive name in bytes. A CREATE record
// carrying it still fits in the smallest supported frame.
const MaxNameLength = 512

// Attr is the visibility and appearance bitmask of a primitive
type Attr uint32

const (
	AttrVisible Attr = 1 << iota
	AttrTransparent
	AttrShaded
	AttrFlipNormals // back-face orientation hint
	AttrShowPoints  // always draw the vertices as points
	AttrShowLines   // always draw the line decoration
)

// DefaultAttrs is used by the demo scene and the tests
const DefaultAttrs = AttrVisible | AttrShaded

func (a Attr) String() string {
	var names []string
	for _, an := range attrNames {
		if a&an.attr != 0 {
			names = append(names, an.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

var attrNames = []struct {
	name string
	attr Attr
}{
	{"visible", AttrVisible},
	{"transparent", AttrTransparent},
	{"shaded", AttrShaded},
	{"flip-normals", AttrFlipNormals},
	{"show-points", AttrShowPoints},
	{"show-lines", AttrShowLines},
}

// Color is an 8-bit RGB color
type Color [3]uint8

// Appearance holds the appearance settings that are not per-vertex
type Appearance struct {
	PointSize  float32
	PointColor Color
	LineWidth  float32
	LineColor  Color
	FrontColor Color
	BackColor  Color

	// FaceNormal is used for planar primitives without per-vertex normals.
	// If set on a triangle primitive, no normals are computed.
	FaceNormal *geometry.Vec3
}

// DefaultAppearance returns the appearance of a primitive created without
// WithAppearance.
func DefaultAppearance() Appearance {
	return Appearance{
		PointSize:  1,
		PointColor: Color{255, 255, 255},
		LineWidth:  1,
		LineColor:  Color{255, 255, 255},
		FrontColor: Color{200, 200, 200},
		BackColor:  Color{100, 100, 100},
	}
}

// DirtyMask records what changed in a primitive since the last snapshot
type DirtyMask uint16

// RoleDirty returns the dirty bit for a field role
func RoleDirty(r geometry.Role) DirtyMask {
	return 1 << (r - 1)
}

const (
	DirtyVertices     = DirtyMask(1 << (geometry.RoleVertices - 1))
	DirtyIndices      = DirtyMask(1 << (geometry.RoleIndices - 1))
	DirtyColors       = DirtyMask(1 << (geometry.RoleColors - 1))
	DirtyNormals      = DirtyMask(1 << (geometry.RoleNormals - 1))
	DirtyPointIndices = DirtyMask(1 << (geometry.RolePointIndices - 1))
	DirtyLineIndices  = DirtyMask(1 << (geometry.RoleLineIndices - 1))
	DirtyEndCaps      = DirtyMask(1<<(geometry.RoleEndCapVertices-1) | 1<<(geometry.RoleEndCapNormals-1))

	DirtyAttributes DirtyMask = 1 << 12 // attribute bits or fixed appearance
	DirtyLayout     DirtyMask = 1 << 13 // stripes were repartitioned
	DirtyCreated    DirtyMask = 1 << 14 // not yet sent to synced clients

	// DirtyFields covers all per-stripe field bits
	DirtyFields = DirtyVertices | DirtyIndices | DirtyColors | DirtyNormals |
		DirtyPointIndices | DirtyLineIndices | DirtyEndCaps
)

// Has reports if any of the bits in o are set
func (d DirtyMask) Has(o DirtyMask) bool {
	return d&o != 0
}

// endCapRequest is one AddEndCaps call, replayed when vertices change
type endCapRequest struct {
	size     float32
	segments []int32
}

// Primitive is one named drawable object. Its arrays are replaced, never
// written in place, so snapshots can reference them without copying.
type Primitive struct {
	ID         PrimitiveID
	Name       string
	Kind       geometry.Kind
	Attrs      Attr
	Appearance Appearance

	Vertices     []float32
	Normals      []float32
	Colors       []uint8
	Indices      []int32
	PointIndices []int32
	LineIndices  []int32

	EndCapVertices []float32
	EndCapNormals  []float32

	Stripes []stripe.Stripe

	derivedNormals bool
	endCaps        []endCapRequest
	dirty          DirtyMask
	flushed        bool
	version        uint64 // bumped by every mutation after creation
}

// VertexCount returns the number of vertices of the primitive
func (p *Primitive) VertexCount() int {
	return len(p.Vertices) / 3
}

// PrimitiveOption configures a primitive on creation
type PrimitiveOption func(p *Primitive)

// WithAppearance sets the fixed appearance of a new primitive
func WithAppearance(a Appearance) PrimitiveOption {
	return func(p *Primitive) {
		p.Appearance = a
	}
}

// WithFaceNormal sets a constant face normal, which disables automatic
// normal computation for triangle primitives.
func WithFaceNormal(n geometry.Vec3) PrimitiveOption {
	return func(p *Primitive) {
		p.Appearance.FaceNormal = &n
	}
}
