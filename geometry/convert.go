// Package geometry converts caller-supplied numeric arrays into the canonical
// representation used by the scene store and computes derived geometry
// (vertex normals and end caps).
package geometry

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// NumType identifies the encoding of a raw numeric buffer
type NumType uint8

const (
	Int8 NumType = iota + 1
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

var numTypeNames = map[NumType]string{
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Float32: "float32",
	Float64: "float64",
}

func (t NumType) String() string {
	if s, ok := numTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("NumType(%d)", uint8(t))
}

// Size returns the number of bytes per element
func (t NumType) Size() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// IsInteger reports if the type holds integers
func (t NumType) IsInteger() bool {
	return t != Float32 && t != Float64 && t.Size() > 0
}

var (
	ErrUnsupportedType = errors.New("unsupported numeric type")
	ErrShortBuffer     = errors.New("buffer too short for element count")
)

// TypeOf returns the NumType of a typed slice
func TypeOf(data interface{}) (NumType, error) {
	switch data.(type) {
	case []int8:
		return Int8, nil
	case []uint8:
		return Uint8, nil
	case []int16:
		return Int16, nil
	case []uint16:
		return Uint16, nil
	case []int32:
		return Int32, nil
	case []uint32:
		return Uint32, nil
	case []float32:
		return Float32, nil
	case []float64:
		return Float64, nil
	}
	return 0, errors.Wrapf(ErrUnsupportedType, "%T", data)
}

// Len returns the number of elements in a typed slice
func Len(data interface{}) int {
	switch v := data.(type) {
	case []int8:
		return len(v)
	case []uint8:
		return len(v)
	case []int16:
		return len(v)
	case []uint16:
		return len(v)
	case []int32:
		return len(v)
	case []uint32:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	}
	return 0
}

// DecodeRaw turns count little-endian elements of type t into a typed slice
// that the other conversion functions accept.
func DecodeRaw(t NumType, b []byte, count int) (interface{}, error) {
	size := t.Size()
	if size == 0 {
		return nil, errors.Wrap(ErrUnsupportedType, t.String())
	}
	if count < 0 || len(b) < size*count {
		return nil, errors.Wrapf(ErrShortBuffer, "%d bytes for %d %s", len(b), count, t)
	}
	le := binary.LittleEndian
	switch t {
	case Int8:
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(b[i])
		}
		return out, nil
	case Uint8:
		out := make([]uint8, count)
		copy(out, b)
		return out, nil
	case Int16:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(le.Uint16(b[2*i:]))
		}
		return out, nil
	case Uint16:
		out := make([]uint16, count)
		for i := range out {
			out[i] = le.Uint16(b[2*i:])
		}
		return out, nil
	case Int32:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(le.Uint32(b[4*i:]))
		}
		return out, nil
	case Uint32:
		out := make([]uint32, count)
		for i := range out {
			out[i] = le.Uint32(b[4*i:])
		}
		return out, nil
	case Float32:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(b[4*i:]))
		}
		return out, nil
	default: // Float64
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(b[8*i:]))
		}
		return out, nil
	}
}

// ToFloat32 converts the first count elements to float32.
func ToFloat32(data interface{}, count int) ([]float32, error) {
	if Len(data) < count {
		return nil, errors.Wrapf(ErrShortBuffer, "%d < %d", Len(data), count)
	}
	out := make([]float32, count)
	switch v := data.(type) {
	case []int8:
		for i := range out {
			out[i] = float32(v[i])
		}
	case []uint8:
		for i := range out {
			out[i] = float32(v[i])
		}
	case []int16:
		for i := range out {
			out[i] = float32(v[i])
		}
	case []uint16:
		for i := range out {
			out[i] = float32(v[i])
		}
	case []int32:
		for i := range out {
			out[i] = float32(v[i])
		}
	case []uint32:
		for i := range out {
			out[i] = float32(v[i])
		}
	case []float32:
		copy(out, v)
	case []float64:
		for i := range out {
			out[i] = float32(v[i])
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%T", data)
	}
	return out, nil
}

// ToInt32 converts the first count elements of an integer slice to int32.
// Float input is rejected, indices must be exact.
func ToInt32(data interface{}, count int) ([]int32, error) {
	if Len(data) < count {
		return nil, errors.Wrapf(ErrShortBuffer, "%d < %d", Len(data), count)
	}
	out := make([]int32, count)
	switch v := data.(type) {
	case []int8:
		for i := range out {
			out[i] = int32(v[i])
		}
	case []uint8:
		for i := range out {
			out[i] = int32(v[i])
		}
	case []int16:
		for i := range out {
			out[i] = int32(v[i])
		}
	case []uint16:
		for i := range out {
			out[i] = int32(v[i])
		}
	case []int32:
		copy(out, v)
	case []uint32:
		for i := range out {
			if v[i] > math.MaxInt32 {
				return nil, fmt.Errorf("index %d overflows int32", v[i])
			}
			out[i] = int32(v[i])
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%T is not an integer type", data)
	}
	return out, nil
}

// ToColor converts the first count elements to 8-bit color channels.
// Floats are interpreted as [0,1] intensities, integers as 0..255 values.
// Both are clamped.
func ToColor(data interface{}, count int) ([]uint8, error) {
	if Len(data) < count {
		return nil, errors.Wrapf(ErrShortBuffer, "%d < %d", Len(data), count)
	}
	out := make([]uint8, count)
	switch v := data.(type) {
	case []int8:
		for i := range out {
			out[i] = clampInt(int64(v[i]))
		}
	case []uint8:
		copy(out, v)
	case []int16:
		for i := range out {
			out[i] = clampInt(int64(v[i]))
		}
	case []uint16:
		for i := range out {
			out[i] = clampInt(int64(v[i]))
		}
	case []int32:
		for i := range out {
			out[i] = clampInt(int64(v[i]))
		}
	case []uint32:
		for i := range out {
			out[i] = clampInt(int64(v[i]))
		}
	case []float32:
		for i := range out {
			out[i] = clampUnit(float64(v[i]))
		}
	case []float64:
		for i := range out {
			out[i] = clampUnit(v[i])
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%T", data)
	}
	return out, nil
}

func clampInt(v int64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampUnit(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
