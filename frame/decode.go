package frame

import (
	"fmt"

	"github.com/pkg/errors"
)

// Record is one decoded record. The payload aliases the frame buffer.
type Record struct {
	Header
	Payload []byte
}

// Decode splits a frame into its records. The last record of a frame must
// be a CONTINUE or END_OF_FRAME, and no other record may be one of those.
func Decode(frame []byte) ([]Record, error) {
	var records []Record
	off := 0
	for off < len(frame) {
		h, err := ParseHeader(frame[off:])
		if err != nil {
			return nil, errors.Wrapf(err, "record %d at offset %d", len(records), off)
		}
		start := off + HeaderSize
		end := start + int(h.Length)
		if int(h.Length) > len(frame) || end > len(frame) {
			return nil, errors.Wrapf(ErrTooShort, "%s record at offset %d with %d payload bytes",
				h.Op, off, h.Length)
		}
		records = append(records, Record{Header: h, Payload: frame[start:end]})
		off = start + Padded(int(h.Length))
		if h.Op == OpContinue || h.Op == OpEndOfFrame {
			if off < len(frame) {
				return nil, errors.Errorf("%s record at offset %d is not the last one", h.Op, off)
			}
			return records, nil
		}
	}
	return nil, errors.Wrap(ErrTooShort, "frame does not end with CONTINUE or END_OF_FRAME")
}

// Terminal reports if the record ends a flush cycle
func (r Record) Terminal() bool {
	return r.Op == OpEndOfFrame
}

// String summarizes the record for logs and the dump command
func (r Record) String() string {
	switch r.Op {
	case OpInit:
		p, err := ParseInit(r.Payload)
		if err != nil {
			break
		}
		return fmt.Sprintf("INIT version=%d bias=%d limit=%d fov=%g eye=%v",
			p.Version, p.Bias, p.Limit, p.Camera.FOV, p.Camera.Eye)
	case OpDelete:
		id, err := ParseDelete(r.Payload)
		if err != nil {
			break
		}
		return fmt.Sprintf("DELETE id=%d", id)
	case OpCreate:
		p, err := ParseCreate(r.Payload)
		if err != nil {
			break
		}
		return fmt.Sprintf("CREATE id=%d name=%q kind=%s attrs=%s stripes=%d",
			p.ID, p.Name, p.Kind, p.Attrs, p.Stripes)
	case OpSetAttributes:
		p, err := ParseSetAttributes(r.Payload)
		if err != nil {
			break
		}
		return fmt.Sprintf("SET_ATTRIBUTES id=%d attrs=%s", p.ID, p.Attrs)
	case OpStripeData, OpEditField:
		a, err := ParseArray(r.Payload)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s id=%d stripe=%d field=%s %s[%d:%d] of %d",
			r.Op, a.ID, a.Stripe, a.Role, a.Elem, a.Offset, a.Offset+a.Count, a.Total)
	case OpEndOfFrame:
		seq, err := ParseEndOfFrame(r.Payload)
		if err != nil {
			break
		}
		return fmt.Sprintf("END_OF_FRAME seq=%d", seq)
	default:
		return r.Op.String()
	}
	return fmt.Sprintf("%s (invalid payload of %d bytes)", r.Op, len(r.Payload))
}
