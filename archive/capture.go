package archive

import (
	"sort"

	"github.com/CrowdStrike/csproto"
	"github.com/pkg/errors"
)

const (
	// CurrentFormatVersion is the capture format we write
	CurrentFormatVersion uint32 = 1

	// CompatFormatVersion is the oldest capture format we can read
	CompatFormatVersion uint32 = 1
)

// Protobuf field numbers
const (
	FieldCaptureFormatVersion = 1
	FieldCaptureMeta          = 2
	FieldCaptureFrame         = 3
	FieldCaptureMetadata      = 4

	FieldMetadataName  = 1
	FieldMetadataKey   = 2
	FieldMetadataValue = 3
)

var ErrUnsupportedVersion = errors.New("unsupported capture format version")

// Capture is the root object in a capture protobuf
type Capture struct {
	FormatVersion uint32
	Meta          Meta
	Frames        [][]byte
	Metadata      map[string]map[string]string
}

// Size returns the total size of all frames
func (c *Capture) Size() int {
	n := 0
	for _, f := range c.Frames {
		n += len(f)
	}
	return n
}

func (c *Capture) Marshal() []byte {
	e := &encoder{b: make([]byte, 0, c.Size()+len(c.Frames)*8+1024)}
	e.uint(FieldCaptureFormatVersion, uint64(c.FormatVersion))
	e.bytes(FieldCaptureMeta, c.Meta.Marshal())
	for _, f := range c.Frames {
		e.bytes(FieldCaptureFrame, f)
	}

	// Sorted for stable output
	names := make([]string, 0, len(c.Metadata))
	for name := range c.Metadata {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		attrs := c.Metadata[name]
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			me := &encoder{}
			me.string(FieldMetadataName, name)
			me.string(FieldMetadataKey, k)
			me.string(FieldMetadataValue, attrs[k])
			e.bytes(FieldCaptureMetadata, me.b)
		}
	}
	return e.b
}

func (c *Capture) Unmarshal(data []byte) error {
	d := csproto.NewDecoder(data)
	d.SetMode(csproto.DecoderModeFast)
	for d.More() {
		tag, wireType, err := d.DecodeTag()
		if err != nil {
			return err
		}
		switch tag {
		case FieldCaptureFormatVersion:
			c.FormatVersion, err = getUInt32(d, tag, wireType)
			if err != nil {
				return err
			}
		case FieldCaptureMeta:
			msg, err := getBytes(d, tag, wireType)
			if err != nil {
				return err
			}
			if err := c.Meta.Unmarshal(msg); err != nil {
				return errors.Wrap(err, "meta")
			}
		case FieldCaptureFrame:
			f, err := getBytes(d, tag, wireType)
			if err != nil {
				return err
			}
			c.Frames = append(c.Frames, f)
		case FieldCaptureMetadata:
			msg, err := getBytes(d, tag, wireType)
			if err != nil {
				return err
			}
			if err := c.unmarshalMetadata(msg); err != nil {
				return errors.Wrap(err, "metadata")
			}
		default:
			if _, err := d.Skip(tag, wireType); err != nil {
				return err
			}
		}
	}
	if c.FormatVersion < CompatFormatVersion || c.FormatVersion > CurrentFormatVersion {
		return errors.Wrapf(ErrUnsupportedVersion, "version %d", c.FormatVersion)
	}
	return nil
}

func (c *Capture) unmarshalMetadata(data []byte) error {
	var name, key, value string
	d := csproto.NewDecoder(data)
	d.SetMode(csproto.DecoderModeFast)
	for d.More() {
		tag, wireType, err := d.DecodeTag()
		if err != nil {
			return err
		}
		switch tag {
		case FieldMetadataName:
			name, err = getString(d, tag, wireType)
		case FieldMetadataKey:
			key, err = getString(d, tag, wireType)
		case FieldMetadataValue:
			value, err = getString(d, tag, wireType)
		default:
			_, err = d.Skip(tag, wireType)
		}
		if err != nil {
			return err
		}
	}
	if c.Metadata == nil {
		c.Metadata = make(map[string]map[string]string)
	}
	attrs, exists := c.Metadata[name]
	if !exists {
		attrs = make(map[string]string)
		c.Metadata[name] = attrs
	}
	attrs[key] = value
	return nil
}
