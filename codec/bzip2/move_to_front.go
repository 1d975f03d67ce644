package bzip2

// moveToFrontDecoder implements a move-to-front list over at most 256 symbols.
type moveToFrontDecoder []byte

// newMTFDecoder creates a move-to-front decoder with an explicit initial list of symbols.
func newMTFDecoder(symbols []byte) moveToFrontDecoder {
	if len(symbols) > 256 {
		panic("too many symbols")
	}

	return moveToFrontDecoder(append([]byte(nil), symbols...))
}

// newMTFDecoderWithRange creates a move-to-front decoder with an initial list of 0...n-1.
func newMTFDecoderWithRange(n int) moveToFrontDecoder {
	if n > 256 {
		panic("newMTFDecoderWithRange: cannot have > 256 symbols")
	}

	m := make([]byte, n)
	for i := range n {
		m[i] = byte(i)
	}
	return m
}

// Decode returns the symbol at index n and moves it to the front.
func (m moveToFrontDecoder) Decode(n int) (b byte) {
	b = m[n]
	copy(m[1:], m[:n])
	m[0] = b
	return
}

// First returns the symbol at the front of the list.
func (m moveToFrontDecoder) First() byte {
	return m[0]
}
