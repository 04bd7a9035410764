package archive

import (
	"time"

	"github.com/CrowdStrike/csproto"
)

// Protobuf field numbers
const (
	FieldMetaScene         = 1
	FieldMetaInstanceID    = 2
	FieldMetaHostname      = 3
	FieldMetaGenerationID  = 4
	FieldMetaTimestampNano = 5
	FieldMetaPrimitives    = 6
	FieldMetaSeq           = 7
)

type Meta struct {
	Scene         string
	InstanceID    string
	Hostname      string
	GenerationID  string // unique per server run
	TimestampNano uint64
	Primitives    uint32
	Seq           uint64 // flush sequence number the capture was taken at
}

// Time returns the capture time
func (m *Meta) Time() time.Time {
	return time.Unix(0, int64(m.TimestampNano)).UTC()
}

func (m *Meta) Marshal() []byte {
	e := &encoder{b: make([]byte, 0, 256)}
	e.string(FieldMetaScene, m.Scene)
	e.string(FieldMetaInstanceID, m.InstanceID)
	e.string(FieldMetaHostname, m.Hostname)
	e.string(FieldMetaGenerationID, m.GenerationID)
	e.fixed64(FieldMetaTimestampNano, m.TimestampNano)
	e.uint(FieldMetaPrimitives, uint64(m.Primitives))
	e.uint(FieldMetaSeq, m.Seq)
	return e.b
}

func (m *Meta) Unmarshal(data []byte) error {
	d := csproto.NewDecoder(data)
	d.SetMode(csproto.DecoderModeFast)
	for d.More() {
		tag, wireType, err := d.DecodeTag()
		if err != nil {
			return err
		}
		switch tag {
		case FieldMetaScene:
			m.Scene, err = getString(d, tag, wireType)
		case FieldMetaInstanceID:
			m.InstanceID, err = getString(d, tag, wireType)
		case FieldMetaHostname:
			m.Hostname, err = getString(d, tag, wireType)
		case FieldMetaGenerationID:
			m.GenerationID, err = getString(d, tag, wireType)
		case FieldMetaTimestampNano:
			m.TimestampNano, err = getFixed64(d, tag, wireType)
		case FieldMetaPrimitives:
			m.Primitives, err = getUInt32(d, tag, wireType)
		case FieldMetaSeq:
			m.Seq, err = getUInt64(d, tag, wireType)
		default:
			_, err = d.Skip(tag, wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
