package archive

import (
	"bytes"
	"io"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/gzip"
)

// LoadData loads capture file contents that are gzipped protobufs
func LoadData(data []byte) (*Capture, error) {
	// Uncompress
	g, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	pbData, err := io.ReadAll(g)
	if err != nil {
		return nil, err
	}
	if err := g.Close(); err != nil {
		return nil, err
	}

	// Load protobuf
	msg := new(Capture)
	if err := msg.Unmarshal(pbData); err != nil {
		return nil, err
	}
	return msg, nil
}

// DumpData returns a compressed Capture.
func DumpData(msg *Capture) ([]byte, DumpDataStats, error) {
	var stat DumpDataStats
	t0 := time.Now()

	pb := msg.Marshal()
	stat.ProtobufSize = datasize.ByteSize(len(pb))

	out := bytes.NewBuffer(make([]byte, 0, len(pb)/4+512))
	gw, err := gzip.NewWriterLevel(out, gzip.BestSpeed)
	if err != nil {
		return nil, stat, err
	}
	if _, err := gw.Write(pb); err != nil {
		return nil, stat, err
	}
	if err = gw.Close(); err != nil {
		return nil, stat, err
	}
	stat.TCompressed = time.Since(t0)

	compressedData := out.Bytes()
	stat.CompressedSize = datasize.ByteSize(len(compressedData))
	return compressedData, stat, nil
}

type DumpDataStats struct {
	TCompressed    time.Duration     // time it took to marshal and compress
	ProtobufSize   datasize.ByteSize // uncompressed protobuf size
	CompressedSize datasize.ByteSize // compressed size
}
