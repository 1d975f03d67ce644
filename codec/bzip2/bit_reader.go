package bzip2

import (
	"bufio"
	"io"
)

// bitReader reads bits MSB first from an io.ByteReader.
//
// The first error encountered is sticky; subsequent reads return zeros and the caller checks err at convenient points.
type bitReader struct {
	r    io.ByteReader
	n    uint64
	bits uint
	err  error
}

func newBitReader(r io.Reader) bitReader {
	byter, ok := r.(io.ByteReader)
	if !ok {
		byter = bufio.NewReader(r)
	}

	return bitReader{r: byter}
}

// ReadBits64 reads up to 57 bits.
func (br *bitReader) ReadBits64(bits uint) (n uint64) {
	for bits > br.bits {
		b, err := br.r.ReadByte()
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			if br.err == nil {
				br.err = err
			}
			return 0
		}
		br.n <<= 8
		br.n |= uint64(b)
		br.bits += 8
	}

	n = (br.n >> (br.bits - bits)) & ((1 << bits) - 1)
	br.bits -= bits
	return
}

func (br *bitReader) ReadBits(bits uint) int {
	return int(br.ReadBits64(bits))
}

func (br *bitReader) ReadBit() bool {
	return br.ReadBits(1) != 0
}
