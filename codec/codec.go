package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/nguyengg/unalz/codec/bzip2"
)

// Method is the compression method byte stored in a local file header.
type Method uint8

const (
	Store   Method = 0
	Bzip2   Method = 1
	Deflate Method = 2
)

func (m Method) String() string {
	switch m {
	case Store:
		return "Store"
	case Bzip2:
		return "BZip2"
	case Deflate:
		return "Deflate"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

var (
	// ErrUnknownMethod is returned by New for method bytes that have no decoder.
	ErrUnknownMethod = errors.New("unknown compression method")

	// ErrSizeMismatch is returned when a decoder produces more or fewer bytes than the header declared.
	ErrSizeMismatch = errors.New("decompressed size does not match header")
)

// Codec creates decoders for one compression method.
type Codec interface {
	// NewDecoder creates a decoder to decompress contents from the given io.Reader.
	NewDecoder(src io.Reader) (io.ReadCloser, error)
}

// New returns the Codec for the given method.
func New(m Method) (Codec, error) {
	switch m {
	case Store:
		return storeCodec{}, nil
	case Bzip2:
		return bzip2Codec{}, nil
	case Deflate:
		return deflateCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, uint8(m))
	}
}

// NewDecoder returns a decoder for method m that produces exactly size bytes from src.
//
// A stream that ends early fails with io.ErrUnexpectedEOF; a stream that has data left after size bytes fails with
// ErrSizeMismatch. Both surface from Read, after all the bytes that could be decoded have been returned.
func NewDecoder(m Method, src io.Reader, size uint64) (io.ReadCloser, error) {
	c, err := New(m)
	if err != nil {
		return nil, err
	}

	dec, err := c.NewDecoder(src)
	if err != nil {
		return nil, err
	}

	return &exactReader{ReadCloser: dec, remaining: size}, nil
}

type bzip2Codec struct{}

var _ Codec = bzip2Codec{}

func (bzip2Codec) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(bzip2.NewReader(src)), nil
}

// exactReader enforces the declared uncompressed size.
type exactReader struct {
	io.ReadCloser
	remaining uint64
	err       error
}

func (r *exactReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	if r.remaining == 0 {
		// the decoder must be exhausted too.
		var b [1]byte
		n, err := io.ReadFull(r.ReadCloser, b[:])
		switch {
		case n > 0:
			r.err = ErrSizeMismatch
		case err == io.EOF:
			r.err = io.EOF
		default:
			r.err = err
		}

		return 0, r.err
	}

	if uint64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}

	n, err := r.ReadCloser.Read(p)
	r.remaining -= uint64(n)

	if err == io.EOF {
		if r.remaining != 0 {
			r.err = io.ErrUnexpectedEOF
			return n, r.err
		}

		r.err = io.EOF
		return n, nil
	}

	if err != nil {
		r.err = err
	}

	return n, err
}
