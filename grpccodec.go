package shardkvx

import (
	"encoding/json"
	"io"

	"github.com/golang/snappy"
	"google.golang.org/grpc/encoding"
)

// jsonCodecName is negotiated as the gRPC content-subtype, kvrpcx types are
// plain structs with json tags.
const jsonCodecName = "json"

// snappyCompressorName is the grpc-encoding used when payload compression
// is enabled on a client.
const snappyCompressorName = "snappy"

func init() {
	encoding.RegisterCompressor(snappyCompressor{})
}

type jsonCodec struct{}

var _ encoding.Codec = jsonCodec{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

type snappyCompressor struct{}

var _ encoding.Compressor = snappyCompressor{}

func (snappyCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (snappyCompressor) Decompress(r io.Reader) (io.Reader, error) {
	return snappy.NewReader(r), nil
}

func (snappyCompressor) Name() string {
	return snappyCompressorName
}
