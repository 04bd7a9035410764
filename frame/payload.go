package frame

import (
	"encoding/binary"
	"fmt"
	"math"

	"cogentcore.org/core/math32"
	"github.com/pkg/errors"

	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/scene"
)

// Fixed payload sizes
const (
	InitSize          = 56
	DeleteSize        = 4
	AppearanceSize    = 36
	CreateFixedSize   = 16 + AppearanceSize // followed by the name
	SetAttributesSize = 8 + AppearanceSize
	ArrayHeaderSize   = 20 // followed by the elements
	EndOfFrameSize    = 8

	// MaxNameLength is the longest primitive name that can be encoded
	MaxNameLength = scene.MaxNameLength
)

// Init starts the stream of a connection
type Init struct {
	Version uint16
	Bias    uint8
	Limit   uint32 // stripe vertex limit used by the server
	Camera  scene.Camera
}

// Create introduces a primitive. It is followed by the STRIPE_DATA records
// of all its stripes.
type Create struct {
	ID         uint32
	Kind       geometry.Kind
	Name       string
	Attrs      scene.Attr
	Stripes    uint32
	Appearance scene.Appearance
}

// SetAttributes replaces the attributes and fixed appearance of a primitive
type SetAttributes struct {
	ID         uint32
	Attrs      scene.Attr
	Appearance scene.Appearance
}

// ElemType is the element type of an array record
type ElemType uint8

const (
	ElemFloat32 ElemType = iota + 1
	ElemUint8
	ElemUint16
)

// Size returns the element size in bytes
func (t ElemType) Size() int {
	switch t {
	case ElemFloat32:
		return 4
	case ElemUint8:
		return 1
	case ElemUint16:
		return 2
	}
	return 0
}

func (t ElemType) String() string {
	switch t {
	case ElemFloat32:
		return "f32"
	case ElemUint8:
		return "u8"
	case ElemUint16:
		return "u16"
	}
	return fmt.Sprintf("ElemType(%d)", uint8(t))
}

// RoleElemType returns the element type used for a field role
func RoleElemType(r geometry.Role) ElemType {
	switch r {
	case geometry.RoleColors:
		return ElemUint8
	case geometry.RoleIndices, geometry.RolePointIndices, geometry.RoleLineIndices:
		return ElemUint16
	}
	return ElemFloat32
}

// ArrayHeader describes one chunk of a stripe field. A field that does not
// fit in the remainder of a frame is sent as several chunks with increasing
// offsets. Offset, Count and Total are element counts.
type ArrayHeader struct {
	ID     uint32
	Stripe uint16
	Role   geometry.Role
	Elem   ElemType
	Total  uint32
	Offset uint32
	Count  uint32
}

// Last reports if this chunk completes the field
func (h ArrayHeader) Last() bool {
	return h.Offset+h.Count >= h.Total
}

// Array is a decoded STRIPE_DATA or EDIT_FIELD record
type Array struct {
	ArrayHeader
	Data []byte // raw little-endian elements
}

// Float32s decodes the elements of a float array
func (a Array) Float32s() []float32 {
	out := make([]float32, len(a.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*i:]))
	}
	return out
}

// Uint16s decodes the elements of an index array
func (a Array) Uint16s() []uint16 {
	out := make([]uint16, len(a.Data)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(a.Data[2*i:])
	}
	return out
}

// Bytes returns a copy of the elements of a color array
func (a Array) Bytes() []uint8 {
	return append([]uint8(nil), a.Data...)
}

// writer writes little-endian values into a preallocated buffer
type writer struct {
	b   []byte
	off int
}

func (w *writer) u8(v uint8) {
	w.b[w.off] = v
	w.off++
}

func (w *writer) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.b[w.off:], v)
	w.off += 2
}

func (w *writer) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.b[w.off:], v)
	w.off += 4
}

func (w *writer) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.b[w.off:], v)
	w.off += 8
}

func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *writer) vec(v geometry.Vec3) {
	w.f32(v.X)
	w.f32(v.Y)
	w.f32(v.Z)
}

func (w *writer) color(c scene.Color) {
	w.u8(c[0])
	w.u8(c[1])
	w.u8(c[2])
}

func (w *writer) appearance(a scene.Appearance) {
	w.f32(a.PointSize)
	w.f32(a.LineWidth)
	w.color(a.PointColor)
	w.color(a.LineColor)
	w.color(a.FrontColor)
	w.color(a.BackColor)
	if a.FaceNormal != nil {
		w.u32(1)
		w.vec(*a.FaceNormal)
	} else {
		w.u32(0)
		w.vec(geometry.Vec3{})
	}
}

func (w *writer) bytes(b []byte) {
	w.off += copy(w.b[w.off:], b)
}

// reader is the counterpart of writer. Reads past the end set err and
// return zero values.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = errors.Wrapf(ErrTooShort, "need %d bytes at offset %d, have %d", n, r.off, len(r.b))
		return nil
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) vec() geometry.Vec3 {
	return math32.Vec3(r.f32(), r.f32(), r.f32())
}

func (r *reader) color() scene.Color {
	return scene.Color{r.u8(), r.u8(), r.u8()}
}

func (r *reader) appearance() scene.Appearance {
	var a scene.Appearance
	a.PointSize = r.f32()
	a.LineWidth = r.f32()
	a.PointColor = r.color()
	a.LineColor = r.color()
	a.FrontColor = r.color()
	a.BackColor = r.color()
	hasNormal := r.u32()&1 != 0
	n := r.vec()
	if hasNormal {
		a.FaceNormal = &n
	}
	return a
}

func (p Init) put(b []byte) {
	w := writer{b: b}
	w.u16(p.Version)
	w.u8(p.Bias)
	w.u8(0)
	w.u32(p.Limit)
	w.f32(p.Camera.FOV)
	w.f32(p.Camera.Near)
	w.f32(p.Camera.Far)
	w.vec(p.Camera.Eye)
	w.vec(p.Camera.Center)
	w.vec(p.Camera.Up)
}

// ParseInit parses an INIT payload
func ParseInit(b []byte) (Init, error) {
	r := reader{b: b}
	var p Init
	p.Version = r.u16()
	p.Bias = r.u8()
	r.u8()
	p.Limit = r.u32()
	p.Camera.FOV = r.f32()
	p.Camera.Near = r.f32()
	p.Camera.Far = r.f32()
	p.Camera.Eye = r.vec()
	p.Camera.Center = r.vec()
	p.Camera.Up = r.vec()
	return p, r.err
}

func (p Create) size() int {
	return CreateFixedSize + len(p.Name)
}

func (p Create) put(b []byte) {
	w := writer{b: b}
	w.u32(p.ID)
	w.u8(uint8(p.Kind))
	w.u8(0)
	w.u16(uint16(len(p.Name)))
	w.u32(uint32(p.Attrs))
	w.u32(p.Stripes)
	w.appearance(p.Appearance)
	w.bytes([]byte(p.Name))
}

// ParseCreate parses a CREATE payload
func ParseCreate(b []byte) (Create, error) {
	r := reader{b: b}
	var p Create
	p.ID = r.u32()
	p.Kind = geometry.Kind(r.u8())
	r.u8()
	nameLen := int(r.u16())
	p.Attrs = scene.Attr(r.u32())
	p.Stripes = r.u32()
	p.Appearance = r.appearance()
	p.Name = string(r.take(nameLen))
	return p, r.err
}

func (p SetAttributes) put(b []byte) {
	w := writer{b: b}
	w.u32(p.ID)
	w.u32(uint32(p.Attrs))
	w.appearance(p.Appearance)
}

// ParseSetAttributes parses a SET_ATTRIBUTES payload
func ParseSetAttributes(b []byte) (SetAttributes, error) {
	r := reader{b: b}
	var p SetAttributes
	p.ID = r.u32()
	p.Attrs = scene.Attr(r.u32())
	p.Appearance = r.appearance()
	return p, r.err
}

// ParseDelete parses a DELETE payload and returns the primitive id
func ParseDelete(b []byte) (uint32, error) {
	r := reader{b: b}
	id := r.u32()
	return id, r.err
}

// ParseEndOfFrame parses an END_OF_FRAME payload and returns the flush
// sequence number
func ParseEndOfFrame(b []byte) (uint64, error) {
	r := reader{b: b}
	seq := r.u64()
	return seq, r.err
}

func (h ArrayHeader) put(b []byte) {
	w := writer{b: b}
	w.u32(h.ID)
	w.u16(h.Stripe)
	w.u8(uint8(h.Role))
	w.u8(uint8(h.Elem))
	w.u32(h.Total)
	w.u32(h.Offset)
	w.u32(h.Count)
}

// ParseArray parses a STRIPE_DATA or EDIT_FIELD payload
func ParseArray(b []byte) (Array, error) {
	r := reader{b: b}
	var a Array
	a.ID = r.u32()
	a.Stripe = r.u16()
	a.Role = geometry.Role(r.u8())
	a.Elem = ElemType(r.u8())
	a.Total = r.u32()
	a.Offset = r.u32()
	a.Count = r.u32()
	if r.err != nil {
		return a, r.err
	}
	if a.Elem.Size() == 0 {
		return a, errors.Errorf("unknown element type %d", a.Elem)
	}
	if uint64(a.Offset)+uint64(a.Count) > uint64(a.Total) {
		return a, errors.Errorf("chunk %d+%d exceeds total %d", a.Offset, a.Count, a.Total)
	}
	a.Data = r.take(int(a.Count) * a.Elem.Size())
	return a, r.err
}
