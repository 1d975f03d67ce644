package bzip2

// maxCodeLen is the longest Huffman code bzip2 allows.
const maxCodeLen = 20

// huffmanTree decodes canonical Huffman codes using per-length limit and base tables.
//
// Codes are assigned in order of increasing length, and within a length in order of increasing symbol value.
type huffmanTree struct {
	limit          [maxCodeLen + 1]int32
	base           [maxCodeLen + 1]int32
	perm           []uint16
	minLen, maxLen int
}

func newHuffmanTree(lengths []uint8) (huffmanTree, error) {
	var t huffmanTree
	if len(lengths) < 2 {
		return t, StructuralError("too few Huffman symbols")
	}

	t.minLen, t.maxLen = maxCodeLen, 0
	var count [maxCodeLen + 1]int32
	for _, l := range lengths {
		if l < 1 || l > maxCodeLen {
			return t, StructuralError("invalid Huffman code length")
		}
		count[l]++
		t.minLen = min(t.minLen, int(l))
		t.maxLen = max(t.maxLen, int(l))
	}

	t.perm = make([]uint16, 0, len(lengths))
	for l := t.minLen; l <= t.maxLen; l++ {
		for sym, ll := range lengths {
			if int(ll) == l {
				t.perm = append(t.perm, uint16(sym))
			}
		}
	}

	var code, idx int32
	for l := t.minLen; l <= t.maxLen; l++ {
		t.base[l] = idx - code
		code += count[l]
		idx += count[l]
		t.limit[l] = code - 1
		code <<= 1
	}

	return t, nil
}

// Decode reads one symbol.
func (t *huffmanTree) Decode(br *bitReader) (uint16, error) {
	n := t.minLen
	code := int32(br.ReadBits(uint(n)))
	for {
		if br.err != nil {
			return 0, br.err
		}

		if code <= t.limit[n] {
			i := code + t.base[n]
			if i < 0 || int(i) >= len(t.perm) {
				return 0, StructuralError("invalid Huffman code")
			}

			return t.perm[i], nil
		}

		if n++; n > t.maxLen {
			return 0, StructuralError("invalid Huffman code")
		}
		code = code<<1 | int32(br.ReadBits(1))
	}
}
