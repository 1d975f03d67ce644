package codec

import (
	"io"

	"github.com/klauspost/compress/flate"
)

// deflateCodec decodes raw DEFLATE (RFC 1951) without any zlib or gzip framing.
type deflateCodec struct{}

var _ Codec = deflateCodec{}

func (deflateCodec) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}
