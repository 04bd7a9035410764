// Package frame implements the binary scene stream.
//
// A flush cycle is encoded as a sequence of frames. Every frame holds whole
// records and ends with either a CONTINUE record, meaning more frames of the
// same cycle follow, or an END_OF_FRAME record that terminates the cycle.
//
// Every record starts with an 8 byte little-endian header:
//
//	offset 0: op      uint16
//	offset 2: flags   uint16 (reserved, zero)
//	offset 4: length  uint32 (payload length, excluding padding)
//
// The payload follows, zero padded to a multiple of 4 bytes.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Version is the protocol version sent in INIT
const Version = 1

// Op is the record type
type Op uint16

const (
	OpInit Op = iota + 1
	OpClearAll
	OpDelete
	OpCreate
	OpStripeData
	OpEditField
	OpSetAttributes
	OpContinue
	OpEndOfFrame
)

var opNames = map[Op]string{
	OpInit:          "INIT",
	OpClearAll:      "CLEAR_ALL",
	OpDelete:        "DELETE",
	OpCreate:        "CREATE",
	OpStripeData:    "STRIPE_DATA",
	OpEditField:     "EDIT_FIELD",
	OpSetAttributes: "SET_ATTRIBUTES",
	OpContinue:      "CONTINUE",
	OpEndOfFrame:    "END_OF_FRAME",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", uint16(op))
}

// Valid reports if op is a known record type
func (op Op) Valid() bool {
	_, ok := opNames[op]
	return ok
}

const (
	// HeaderSize is the size of a record header
	HeaderSize = 8
	// Alignment of record payloads
	Alignment = 4

	OpOffset     = 0
	FlagsOffset  = 2
	LengthOffset = 4
)

var (
	ErrTooShort      = errors.New("frame too short")
	ErrUnknownOp     = errors.New("unknown record type")
	ErrFrameTooSmall = errors.New("maximum frame size too small")
)

// Header is a record header
type Header struct {
	Op     Op
	Flags  uint16
	Length uint32
}

// PutHeader writes h into the first HeaderSize bytes of b
func PutHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint16(b[OpOffset:], uint16(h.Op))
	binary.LittleEndian.PutUint16(b[FlagsOffset:], h.Flags)
	binary.LittleEndian.PutUint32(b[LengthOffset:], h.Length)
}

// ParseHeader parses a record header. It does not check if the payload is
// present.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTooShort
	}
	h := Header{
		Op:     Op(binary.LittleEndian.Uint16(b[OpOffset:])),
		Flags:  binary.LittleEndian.Uint16(b[FlagsOffset:]),
		Length: binary.LittleEndian.Uint32(b[LengthOffset:]),
	}
	if !h.Op.Valid() {
		return h, errors.Wrapf(ErrUnknownOp, "op %d", uint16(h.Op))
	}
	return h, nil
}

// Padded returns n rounded up to the payload alignment
func Padded(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// RecordSize returns the encoded size of a record with a payload of n bytes
func RecordSize(n int) int {
	return HeaderSize + Padded(n)
}
