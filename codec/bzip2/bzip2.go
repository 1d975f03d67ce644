// Package bzip2 decodes the modified bzip2 streams stored by ALZ archives (compression method 1).
//
// The Huffman, move-to-front, Burrows-Wheeler and run-length stages are those of standard bzip2, but the framing is
// different:
//   - there is no "BZh" stream header, the block size is always 900k.
//   - a block starts with the 4-byte tag "DLZ\x01" instead of the 48-bit block magic, and the stream ends with
//     "DLZ\x02" instead of the 48-bit end-of-stream magic.
//   - there is no per-block CRC, no randomised bit, and no combined stream CRC.
//
// Tags are read from the bit stream and are not byte aligned: the next tag starts at the bit right after the
// end-of-block symbol of the previous block.
package bzip2

import (
	"io"
)

// StructuralError is returned when the bzip2 data is found to be syntactically invalid.
type StructuralError string

func (s StructuralError) Error() string {
	return "alz bzip2 data invalid: " + string(s)
}

const (
	blockSize    = 9 * 100000
	maxSelectors = 32767
	tagBlock     = 0x01
	tagEnd       = 0x02
)

var tagPrefix = [3]byte{'D', 'L', 'Z'}

// reader decompresses modified bzip2 data.
type reader struct {
	br  bitReader
	eof bool
	err error

	c          [256]uint // c[b] is the number of times b appears in the current block.
	tt         []uint32  // inverse BWT vector: symbol in the low byte, next index above it.
	tPos       uint32    // index of the next output byte in tt.
	preRLE     []uint32  // contains the RLE data still to be processed.
	preRLEUsed int       // number of entries of preRLE used.

	lastByte    int  // last byte value seen.
	byteRepeats uint // number of repeats of lastByte seen.
	repeats     uint // number of copies of lastByte to output.
}

// NewReader returns an io.Reader which decompresses modified bzip2 data from r.
//
// If r does not also implement io.ByteReader, the decompressor may read more data than necessary from r.
func NewReader(r io.Reader) io.Reader {
	return &reader{br: newBitReader(r), lastByte: -1}
}

func (bz2 *reader) Read(buf []byte) (n int, err error) {
	if bz2.err != nil {
		return 0, bz2.err
	}

	n, err = bz2.read(buf)
	if err != nil {
		bz2.err = err
	}
	if err == io.EOF && n > 0 {
		err = nil
	}

	return
}

func (bz2 *reader) read(buf []byte) (int, error) {
	for {
		if n := bz2.readFromBlock(buf); n > 0 || len(buf) == 0 {
			return n, nil
		}

		if bz2.eof {
			return 0, io.EOF
		}

		var tag [4]byte
		for i := range tag {
			tag[i] = byte(bz2.br.ReadBits(8))
		}
		if bz2.br.err != nil {
			return 0, bz2.br.err
		}
		if [3]byte(tag[:3]) != tagPrefix {
			return 0, StructuralError("bad block tag")
		}

		switch tag[3] {
		case tagBlock:
			if err := bz2.readBlock(); err != nil {
				return 0, err
			}
		case tagEnd:
			bz2.eof = true
		default:
			return 0, StructuralError("unknown block tag type")
		}
	}
}

// readFromBlock reads bytes from the current block and undoes the initial run-length encoding.
func (bz2 *reader) readFromBlock(buf []byte) int {
	n := 0
	for (bz2.repeats > 0 || bz2.preRLEUsed < len(bz2.preRLE)) && n < len(buf) {
		if bz2.repeats > 0 {
			buf[n] = byte(bz2.lastByte)
			n++
			bz2.repeats--
			if bz2.repeats == 0 {
				bz2.lastByte = -1
			}
			continue
		}

		bz2.tPos = bz2.preRLE[bz2.tPos]
		b := byte(bz2.tPos)
		bz2.tPos >>= 8
		bz2.preRLEUsed++

		if bz2.byteRepeats == 3 {
			bz2.repeats = uint(b)
			bz2.byteRepeats = 0
			if bz2.repeats == 0 {
				bz2.lastByte = -1
			}
			continue
		}

		if bz2.lastByte == int(b) {
			bz2.byteRepeats++
		} else {
			bz2.byteRepeats = 0
		}
		bz2.lastByte = int(b)

		buf[n] = b
		n++
	}

	return n
}

// readBlock reads one block, everything after the "DLZ\x01" tag up to and including the end-of-block symbol.
func (bz2 *reader) readBlock() error {
	br := &bz2.br

	// origPtr stays a 24-bit field, directly after the tag since the randomised bit is gone.
	origPtr := uint(br.ReadBits(24))

	// the symbol bitmap: 16 ranges, each optionally followed by a 16-bit map of the symbols used in that range.
	symbolRangeUsedBitmap := br.ReadBits(16)
	symbolPresent := make([]bool, 256)
	numSymbols := 0
	for symRange := uint(0); symRange < 16; symRange++ {
		if symbolRangeUsedBitmap&(0x8000>>symRange) != 0 {
			bits := br.ReadBits(16)
			for symbol := uint(0); symbol < 16; symbol++ {
				if bits&(0x8000>>symbol) != 0 {
					symbolPresent[16*symRange+symbol] = true
					numSymbols++
				}
			}
		}
	}
	if br.err != nil {
		return br.err
	}
	if numSymbols == 0 {
		return StructuralError("no symbols in input")
	}

	// a mapping from symbol index to the byte it stands for.
	symbols := make([]byte, 0, numSymbols)
	for i, present := range symbolPresent {
		if present {
			symbols = append(symbols, byte(i))
		}
	}

	numHuffmanTrees := br.ReadBits(3)
	if numHuffmanTrees < 2 || numHuffmanTrees > 6 {
		return StructuralError("invalid number of Huffman trees")
	}

	numSelectors := br.ReadBits(15)
	if numSelectors == 0 || numSelectors > maxSelectors {
		return StructuralError("invalid number of selectors")
	}

	// the selectors are MTF encoded as unary numbers.
	mtfTreeDecoder := newMTFDecoderWithRange(numHuffmanTrees)
	treeIndexes := make([]uint8, numSelectors)
	for i := range treeIndexes {
		c := 0
		for br.ReadBit() {
			if c++; c >= numHuffmanTrees {
				return StructuralError("tree index too large")
			}
		}
		if br.err != nil {
			return br.err
		}
		treeIndexes[i] = mtfTreeDecoder.Decode(c)
	}

	// RUNA, RUNB and the end-of-block symbol are added to the symbols in use.
	numSymbols += 2
	huffmanTrees := make([]huffmanTree, numHuffmanTrees)
	lengths := make([]uint8, numSymbols)
	for i := range huffmanTrees {
		// each code length is delta encoded from the previous one, starting from a 5-bit value.
		length := br.ReadBits(5)
		for j := range lengths {
			for {
				if length < 1 || length > maxCodeLen {
					return StructuralError("Huffman length out of range")
				}
				if !br.ReadBit() {
					break
				}
				if br.ReadBit() {
					length--
				} else {
					length++
				}
			}
			lengths[j] = uint8(length)
		}
		if br.err != nil {
			return br.err
		}

		var err error
		if huffmanTrees[i], err = newHuffmanTree(lengths); err != nil {
			return err
		}
	}

	selectorIndex := 1 // the next selector to process.
	currentTree := &huffmanTrees[treeIndexes[0]]
	bufIndex := 0 // indexes bz2.tt, the output buffer.

	// the output of the move-to-front transform is run-length encoded with RUNA and RUNB.
	mtf := newMTFDecoder(symbols)
	repeat, repeatPower := 0, 0

	// the tree selector changes every 50 symbols.
	decoded := 0

	bz2.c = [256]uint{}
	if bz2.tt == nil {
		bz2.tt = make([]uint32, blockSize)
	}

	for {
		if decoded == 50 {
			if selectorIndex >= numSelectors {
				return StructuralError("insufficient selector indices for number of symbols")
			}
			currentTree = &huffmanTrees[treeIndexes[selectorIndex]]
			selectorIndex++
			decoded = 0
		}

		v, err := currentTree.Decode(br)
		if err != nil {
			return err
		}
		decoded++

		if v < 2 {
			// RUNA (0) adds repeatPower, RUNB (1) adds twice repeatPower.
			if repeat == 0 {
				repeatPower = 1
			}
			repeat += repeatPower << v
			repeatPower <<= 1

			if repeat > 2*1024*1024 {
				return StructuralError("repeat count too large")
			}
			continue
		}

		if repeat > 0 {
			if repeat > blockSize-bufIndex {
				return StructuralError("repeats past end of block")
			}
			b := mtf.First()
			for range repeat {
				bz2.tt[bufIndex] = uint32(b)
				bufIndex++
			}
			bz2.c[b] += uint(repeat)
			repeat = 0
		}

		if int(v) == numSymbols-1 {
			// end of block.
			break
		}

		// the remaining values are move-to-front indexes offset by one since 0 is only emitted through RUNA/RUNB.
		b := mtf.Decode(int(v - 1))
		if bufIndex >= blockSize {
			return StructuralError("data exceeds block size")
		}
		bz2.tt[bufIndex] = uint32(b)
		bz2.c[b]++
		bufIndex++
	}

	if origPtr >= uint(bufIndex) {
		return StructuralError("origPtr out of bounds")
	}

	bz2.preRLE = bz2.tt[:bufIndex]
	bz2.preRLEUsed = 0
	bz2.tPos = inverseBWT(bz2.preRLE, origPtr, bz2.c[:])
	bz2.lastByte = -1
	bz2.byteRepeats = 0
	bz2.repeats = 0

	return nil
}

// inverseBWT implements the inverse Burrows-Wheeler transform.
//
// On entry the low 8 bits of each tt entry hold the BWT output; on exit the upper 24 bits hold the index of the next
// byte. The returned value is the starting index.
func inverseBWT(tt []uint32, origPtr uint, c []uint) uint32 {
	sum := uint(0)
	for i := range 256 {
		sum += c[i]
		c[i] = sum - c[i]
	}

	for i := range tt {
		b := tt[i] & 0xff
		tt[c[b]] |= uint32(i) << 8
		c[b]++
	}

	return tt[origPtr] >> 8
}
