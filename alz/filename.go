package alz

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
)

// DecodeFilename decodes a stored file name.
//
// Names that are valid UTF-8 are returned verbatim. Everything else is decoded as CP949 (a superset of EUC-KR), with
// unmappable sequences replaced by U+FFFD.
func DecodeFilename(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	s, err := korean.EUCKR.NewDecoder().Bytes(b)
	if err != nil {
		// invalid sequences decode to U+FFFD so this is not expected.
		return string(b)
	}

	return string(s)
}
