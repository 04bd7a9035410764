package frame

import (
	"encoding/binary"
	"math"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"

	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/scene"
)

const (
	// DefaultMaxFrameSize is the default maximum size of one frame
	DefaultMaxFrameSize = 4 * datasize.MB
	// MinFrameSize is the smallest supported maximum frame size
	MinFrameSize = 1 * datasize.KB

	// trailerSize is reserved at the end of every frame for the CONTINUE or
	// END_OF_FRAME record
	trailerSize = HeaderSize + EndOfFrameSize

	// minChunk is the smallest array chunk worth writing into a partially
	// filled frame before starting a new one
	minChunk = 64
)

// SendFunc sends one complete frame. The frame buffer is reused after the
// call returns, so implementations must not retain it.
type SendFunc func(frame []byte) error

// Stats counts what an Encoder sent
type Stats struct {
	Frames  int
	Records int
	Bytes   int64
}

// Encoder writes records into bounded frames and sends every frame as soon
// as the next record does not fit.
type Encoder struct {
	max   int
	buf   []byte
	send  SendFunc
	stats Stats
	err   error
}

// NewEncoder creates an Encoder that sends frames of at most maxFrameSize
// bytes through send.
func NewEncoder(maxFrameSize datasize.ByteSize, send SendFunc) (*Encoder, error) {
	if maxFrameSize < MinFrameSize {
		return nil, errors.Wrapf(ErrFrameTooSmall, "%s < %s", maxFrameSize, MinFrameSize)
	}
	if maxFrameSize > math.MaxInt32 {
		maxFrameSize = math.MaxInt32
	}
	max := int(maxFrameSize) &^ (Alignment - 1)
	return &Encoder{
		max:  max,
		send: send,
	}, nil
}

// Stats returns the number of frames, records and bytes sent so far
func (e *Encoder) Stats() Stats {
	return e.stats
}

// Pending returns the number of bytes in the unsent frame
func (e *Encoder) Pending() int {
	return len(e.buf)
}

// Err returns the first send error. After a send error all further writes
// fail with the same error.
func (e *Encoder) Err() error {
	return e.err
}

// free returns the payload space left in the current frame for one more
// record, after reserving room for the trailer
func (e *Encoder) free() int {
	return e.max - trailerSize - len(e.buf) - HeaderSize
}

// record appends a header for a payload of n bytes and returns the payload
// slice to fill in. It sends the current frame first if the record does not
// fit.
func (e *Encoder) record(op Op, n int) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	if Padded(n) > e.free() {
		if len(e.buf) == 0 {
			return nil, errors.Wrapf(ErrFrameTooSmall, "%s record of %d bytes", op, n)
		}
		if err := e.flush(OpContinue, nil); err != nil {
			return nil, err
		}
		if Padded(n) > e.free() {
			return nil, errors.Wrapf(ErrFrameTooSmall, "%s record of %d bytes", op, n)
		}
	}
	return e.appendRecord(op, n), nil
}

func (e *Encoder) appendRecord(op Op, n int) []byte {
	if e.buf == nil {
		e.buf = make([]byte, 0, e.max)
	}
	start := len(e.buf)
	end := start + RecordSize(n)
	e.buf = e.buf[:end]
	// Clear padding and any leftovers of a previous frame
	clear(e.buf[start:end])
	PutHeader(e.buf[start:], Header{Op: op, Length: uint32(n)})
	e.stats.Records++
	return e.buf[start+HeaderSize : start+HeaderSize+n]
}

// flush terminates the current frame with a CONTINUE or END_OF_FRAME record
// and sends it
func (e *Encoder) flush(op Op, payload []byte) error {
	b := e.appendRecord(op, len(payload))
	copy(b, payload)
	err := e.send(e.buf)
	e.stats.Frames++
	e.stats.Bytes += int64(len(e.buf))
	e.buf = e.buf[:0]
	if err != nil {
		e.err = err
	}
	return err
}

// Init writes the INIT record
func (e *Encoder) Init(p Init) error {
	b, err := e.record(OpInit, InitSize)
	if err != nil {
		return err
	}
	p.put(b)
	return nil
}

// ClearAll writes a CLEAR_ALL record
func (e *Encoder) ClearAll() error {
	_, err := e.record(OpClearAll, 0)
	return err
}

// Delete writes a DELETE record
func (e *Encoder) Delete(id uint32) error {
	b, err := e.record(OpDelete, DeleteSize)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, id)
	return nil
}

// Create writes a CREATE record
func (e *Encoder) Create(p Create) error {
	if len(p.Name) > MaxNameLength {
		return errors.Wrapf(scene.ErrNameTooLong, "%d bytes", len(p.Name))
	}
	b, err := e.record(OpCreate, p.size())
	if err != nil {
		return err
	}
	p.put(b)
	return nil
}

// SetAttributes writes a SET_ATTRIBUTES record
func (e *Encoder) SetAttributes(p SetAttributes) error {
	b, err := e.record(OpSetAttributes, SetAttributesSize)
	if err != nil {
		return err
	}
	p.put(b)
	return nil
}

// Array writes one stripe field as STRIPE_DATA or EDIT_FIELD records.
// Data must be a []float32, []uint8 or []uint16. An empty EDIT_FIELD is
// still written, it clears the field on the client.
func (e *Encoder) Array(op Op, id uint32, stripe int, role geometry.Role, data interface{}) error {
	if op != OpStripeData && op != OpEditField {
		return errors.Errorf("%s is not an array record", op)
	}
	if stripe > math.MaxUint16 {
		return errors.Errorf("stripe index %d out of range", stripe)
	}
	var (
		elem  ElemType
		total int
	)
	switch v := data.(type) {
	case []float32:
		elem, total = ElemFloat32, len(v)
	case []uint8:
		elem, total = ElemUint8, len(v)
	case []uint16:
		elem, total = ElemUint16, len(v)
	default:
		return errors.Errorf("unsupported array type %T", data)
	}
	if uint64(total) > math.MaxUint32 {
		return errors.Errorf("array of %d elements too long", total)
	}
	h := ArrayHeader{
		ID:     id,
		Stripe: uint16(stripe),
		Role:   role,
		Elem:   elem,
		Total:  uint32(total),
	}
	size := elem.Size()
	// Chunk size that always fits in an empty frame
	maxCount := (e.max - trailerSize - HeaderSize - ArrayHeaderSize) / size
	offset := 0
	for {
		count := total - offset
		if fit := (e.free() - ArrayHeaderSize) / size; count > fit {
			if fit < minChunk && len(e.buf) > 0 {
				fit = min(count, maxCount)
			}
			count = min(count, fit)
		}
		h.Offset = uint32(offset)
		h.Count = uint32(count)
		b, err := e.record(op, ArrayHeaderSize+count*size)
		if err != nil {
			return err
		}
		h.put(b)
		putElems(b[ArrayHeaderSize:], data, offset, count)
		offset += count
		if offset >= total {
			return nil
		}
	}
}

func putElems(b []byte, data interface{}, offset, count int) {
	switch v := data.(type) {
	case []float32:
		for i, f := range v[offset : offset+count] {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
		}
	case []uint8:
		copy(b, v[offset:offset+count])
	case []uint16:
		for i, x := range v[offset : offset+count] {
			binary.LittleEndian.PutUint16(b[2*i:], x)
		}
	}
}

// EndOfFrame terminates the flush cycle and sends the last frame
func (e *Encoder) EndOfFrame(seq uint64) error {
	if e.err != nil {
		return e.err
	}
	var payload [EndOfFrameSize]byte
	binary.LittleEndian.PutUint64(payload[:], seq)
	return e.flush(OpEndOfFrame, payload[:])
}
