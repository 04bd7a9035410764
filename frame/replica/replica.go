// Package replica applies a frame stream to an in-memory copy of the scene,
// the way a renderer would. It is used to verify the stream and by the dump
// command to show the contents of captures.
package replica

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/meshstream/meshstream/frame"
	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/scene"
)

var (
	ErrNotInitialized   = errors.New("record before INIT")
	ErrUnknownPrimitive = errors.New("record for unknown primitive")
	ErrDuplicate        = errors.New("primitive created twice")
	ErrIncompleteArray  = errors.New("incomplete array at end of cycle")
)

// Stripe holds the fields of one received stripe
type Stripe struct {
	Vertices     []float32
	Normals      []float32
	Colors       []uint8
	Indices      []uint16
	PointIndices []uint16
	LineIndices  []uint16

	// Only set on stripe 0
	EndCapVertices []float32
	EndCapNormals  []float32
}

// VertexCount returns the number of vertices in the stripe
func (s *Stripe) VertexCount() int {
	return len(s.Vertices) / 3
}

// Primitive is a received primitive
type Primitive struct {
	ID         uint32
	Name       string
	Kind       geometry.Kind
	Attrs      scene.Attr
	Appearance scene.Appearance
	Stripes    []Stripe
}

// Elements resolves the connectivity of all stripes into vertex positions:
// one entry per point, line or triangle, each holding Kind.Arity()
// positions. Stripes of an unindexed primitive are read as consecutive
// runs. In an indexed primitive, stripes without indices only carry
// vertices nothing refers to and draw nothing.
func (p *Primitive) Elements() [][]geometry.Vec3 {
	arity := p.Kind.Arity()
	indexed := p.Indexed()
	var out [][]geometry.Vec3
	for i := range p.Stripes {
		s := &p.Stripes[i]
		n := len(s.Indices)
		if !indexed {
			n = s.VertexCount()
		}
		for e := 0; e+arity <= n; e += arity {
			el := make([]geometry.Vec3, arity)
			for k := range el {
				v := e + k
				if indexed {
					v = int(s.Indices[e+k])
				}
				el[k] = geometry.At(s.Vertices, v)
			}
			out = append(out, el)
		}
	}
	return out
}

// Indexed reports if any stripe carries connectivity
func (p *Primitive) Indexed() bool {
	for i := range p.Stripes {
		if len(p.Stripes[i].Indices) > 0 {
			return true
		}
	}
	return false
}

// Lines resolves the line decoration of all stripes into position pairs
func (p *Primitive) Lines() [][2]geometry.Vec3 {
	var out [][2]geometry.Vec3
	for i := range p.Stripes {
		s := &p.Stripes[i]
		for j := 0; j+1 < len(s.LineIndices); j += 2 {
			out = append(out, [2]geometry.Vec3{
				geometry.At(s.Vertices, int(s.LineIndices[j])),
				geometry.At(s.Vertices, int(s.LineIndices[j+1])),
			})
		}
	}
	return out
}

type arrayKey struct {
	id     uint32
	stripe uint16
	role   geometry.Role
}

// Scene is the replicated scene of one connection
type Scene struct {
	Init       *frame.Init
	Primitives map[uint32]*Primitive

	// Cycles counts the received END_OF_FRAME records, Seq is the last one
	Cycles int
	Seq    uint64
	// Records counts all applied records by type
	Records map[frame.Op]int

	pending map[arrayKey][]byte
}

// New returns an empty Scene
func New() *Scene {
	return &Scene{
		Primitives: make(map[uint32]*Primitive),
		Records:    make(map[frame.Op]int),
		pending:    make(map[arrayKey][]byte),
	}
}

// IDs returns the primitive ids in ascending order
func (s *Scene) IDs() []uint32 {
	ids := make([]uint32, 0, len(s.Primitives))
	for id := range s.Primitives {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ByName returns a primitive by name
func (s *Scene) ByName(name string) *Primitive {
	for _, p := range s.Primitives {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// ApplyFrame decodes a frame and applies all its records
func (s *Scene) ApplyFrame(b []byte) error {
	records, err := frame.Decode(b)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := s.Apply(r); err != nil {
			return errors.Wrapf(err, "apply %s", r.Op)
		}
	}
	return nil
}

// Apply applies a single record
func (s *Scene) Apply(r frame.Record) error {
	if s.Init == nil && r.Op != frame.OpInit {
		return ErrNotInitialized
	}
	s.Records[r.Op]++
	switch r.Op {
	case frame.OpInit:
		p, err := frame.ParseInit(r.Payload)
		if err != nil {
			return err
		}
		s.Init = &p
		s.Primitives = make(map[uint32]*Primitive)
		s.pending = make(map[arrayKey][]byte)

	case frame.OpClearAll:
		s.Primitives = make(map[uint32]*Primitive)

	case frame.OpDelete:
		id, err := frame.ParseDelete(r.Payload)
		if err != nil {
			return err
		}
		if _, exists := s.Primitives[id]; !exists {
			return errors.Wrapf(ErrUnknownPrimitive, "id %d", id)
		}
		delete(s.Primitives, id)

	case frame.OpCreate:
		p, err := frame.ParseCreate(r.Payload)
		if err != nil {
			return err
		}
		if _, exists := s.Primitives[p.ID]; exists {
			return errors.Wrapf(ErrDuplicate, "id %d", p.ID)
		}
		s.Primitives[p.ID] = &Primitive{
			ID:         p.ID,
			Name:       p.Name,
			Kind:       p.Kind,
			Attrs:      p.Attrs,
			Appearance: p.Appearance,
			Stripes:    make([]Stripe, p.Stripes),
		}

	case frame.OpSetAttributes:
		p, err := frame.ParseSetAttributes(r.Payload)
		if err != nil {
			return err
		}
		prim, exists := s.Primitives[p.ID]
		if !exists {
			return errors.Wrapf(ErrUnknownPrimitive, "id %d", p.ID)
		}
		prim.Attrs = p.Attrs
		prim.Appearance = p.Appearance

	case frame.OpStripeData, frame.OpEditField:
		a, err := frame.ParseArray(r.Payload)
		if err != nil {
			return err
		}
		return s.applyArray(a)

	case frame.OpEndOfFrame:
		seq, err := frame.ParseEndOfFrame(r.Payload)
		if err != nil {
			return err
		}
		if len(s.pending) > 0 {
			return errors.Wrapf(ErrIncompleteArray, "%d arrays", len(s.pending))
		}
		s.Seq = seq
		s.Cycles++
	}
	return nil
}

func (s *Scene) applyArray(a frame.Array) error {
	prim, exists := s.Primitives[a.ID]
	if !exists {
		return errors.Wrapf(ErrUnknownPrimitive, "id %d", a.ID)
	}
	if int(a.Stripe) >= len(prim.Stripes) {
		return errors.Errorf("stripe %d of primitive %d with %d stripes",
			a.Stripe, a.ID, len(prim.Stripes))
	}
	if a.Elem != frame.RoleElemType(a.Role) {
		return errors.Errorf("%s sent as %s", a.Role, a.Elem)
	}

	key := arrayKey{id: a.ID, stripe: a.Stripe, role: a.Role}
	size := a.Elem.Size()
	buf, ok := s.pending[key]
	if !ok {
		if a.Offset != 0 {
			return errors.Errorf("%s chunk at offset %d without start", a.Role, a.Offset)
		}
		buf = make([]byte, int(a.Total)*size)
	} else if len(buf) != int(a.Total)*size {
		return errors.Errorf("%s total changed between chunks", a.Role)
	}
	copy(buf[int(a.Offset)*size:], a.Data)
	if !a.Last() {
		s.pending[key] = buf
		return nil
	}
	delete(s.pending, key)

	full := frame.Array{ArrayHeader: a.ArrayHeader, Data: buf}
	st := &prim.Stripes[a.Stripe]
	switch a.Role {
	case geometry.RoleVertices:
		st.Vertices = full.Float32s()
	case geometry.RoleNormals:
		st.Normals = full.Float32s()
	case geometry.RoleColors:
		st.Colors = full.Bytes()
	case geometry.RoleIndices:
		st.Indices = full.Uint16s()
	case geometry.RolePointIndices:
		st.PointIndices = full.Uint16s()
	case geometry.RoleLineIndices:
		st.LineIndices = full.Uint16s()
	case geometry.RoleEndCapVertices:
		st.EndCapVertices = full.Float32s()
	case geometry.RoleEndCapNormals:
		st.EndCapNormals = full.Float32s()
	default:
		return errors.Errorf("unknown field %s", a.Role)
	}
	return nil
}

// Validate checks that all local indices of all stripes refer to vertices
// of the same stripe
func (s *Scene) Validate() error {
	for _, id := range s.IDs() {
		p := s.Primitives[id]
		for i := range p.Stripes {
			st := &p.Stripes[i]
			n := st.VertexCount()
			for _, list := range [][]uint16{st.Indices, st.PointIndices, st.LineIndices} {
				for _, idx := range list {
					if int(idx) >= n {
						return errors.Errorf("primitive %q stripe %d: index %d with %d vertices",
							p.Name, i, idx, n)
					}
				}
			}
			if len(st.Normals) > 0 && len(st.Normals) != len(st.Vertices) {
				return errors.Errorf("primitive %q stripe %d: %d normals for %d vertices",
					p.Name, i, len(st.Normals)/3, n)
			}
			if len(st.Colors) > 0 && len(st.Colors) != len(st.Vertices) {
				return errors.Errorf("primitive %q stripe %d: %d colors for %d vertices",
					p.Name, i, len(st.Colors)/3, n)
			}
		}
	}
	return nil
}
