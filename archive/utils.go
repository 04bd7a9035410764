package archive

import (
	"encoding/binary"
	"fmt"

	"github.com/CrowdStrike/csproto"
)

type ErrUnexpectedWireType struct {
	Tag         int
	WireType    csproto.WireType
	ExpWireType csproto.WireType
}

func (e ErrUnexpectedWireType) Error() string {
	return fmt.Sprintf("unexpected wiretype for tag %d: got %v, expected %v",
		e.Tag, e.WireType, e.ExpWireType)
}

func expectWT(tag int, got, exp csproto.WireType) error {
	if got != exp {
		return ErrUnexpectedWireType{
			Tag:         tag,
			WireType:    got,
			ExpWireType: exp,
		}
	}
	return nil
}

func getUInt32(d *csproto.Decoder, tag int, wireType csproto.WireType) (uint32, error) {
	if err := expectWT(tag, wireType, csproto.WireTypeVarint); err != nil {
		return 0, err
	}
	return d.DecodeUInt32()
}

func getUInt64(d *csproto.Decoder, tag int, wireType csproto.WireType) (uint64, error) {
	if err := expectWT(tag, wireType, csproto.WireTypeVarint); err != nil {
		return 0, err
	}
	return d.DecodeUInt64()
}

func getFixed64(d *csproto.Decoder, tag int, wireType csproto.WireType) (uint64, error) {
	if err := expectWT(tag, wireType, csproto.WireTypeFixed64); err != nil {
		return 0, err
	}
	return d.DecodeFixed64()
}

func getBytes(d *csproto.Decoder, tag int, wireType csproto.WireType) ([]byte, error) {
	if err := expectWT(tag, wireType, csproto.WireTypeLengthDelimited); err != nil {
		return nil, err
	}
	val, err := d.DecodeBytes()
	if err != nil {
		return nil, err
	}
	n := len(val)
	return val[0:n:n], nil
}

func getString(d *csproto.Decoder, tag int, wireType csproto.WireType) (string, error) {
	if err := expectWT(tag, wireType, csproto.WireTypeLengthDelimited); err != nil {
		return "", err
	}
	return d.DecodeString()
}

// encoder appends protobuf fields to a buffer
type encoder struct {
	b []byte
}

func (e *encoder) grow(n int) []byte {
	start := len(e.b)
	if cap(e.b)-start < n {
		nb := make([]byte, start, 2*cap(e.b)+n)
		copy(nb, e.b)
		e.b = nb
	}
	return e.b[start : start+n]
}

func (e *encoder) tag(tag int, wt csproto.WireType) {
	b := e.grow(csproto.SizeOfTagKey(tag))
	n := csproto.EncodeTag(b, tag, wt)
	e.b = e.b[:len(e.b)+n]
}

func (e *encoder) varint(v uint64) {
	b := e.grow(csproto.SizeOfVarint(v))
	n := csproto.EncodeVarint(b, v)
	e.b = e.b[:len(e.b)+n]
}

func (e *encoder) uint(tag int, v uint64) {
	if v == 0 {
		return
	}
	e.tag(tag, csproto.WireTypeVarint)
	e.varint(v)
}

func (e *encoder) fixed64(tag int, v uint64) {
	if v == 0 {
		return
	}
	e.tag(tag, csproto.WireTypeFixed64)
	b := e.grow(8)
	binary.LittleEndian.PutUint64(b, v)
	e.b = e.b[:len(e.b)+8]
}

// bytes always writes the field, since empty frames or values are
// meaningful in repeated fields
func (e *encoder) bytes(tag int, v []byte) {
	e.tag(tag, csproto.WireTypeLengthDelimited)
	e.varint(uint64(len(v)))
	b := e.grow(len(v))
	copy(b, v)
	e.b = e.b[:len(e.b)+len(v)]
}

func (e *encoder) string(tag int, v string) {
	if v == "" {
		return
	}
	e.bytes(tag, []byte(v))
}
