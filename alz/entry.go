package alz

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/nguyengg/unalz/codec"
	"github.com/nguyengg/unalz/zipcrypto"
)

// Attr is the attribute byte of a local file header.
type Attr uint8

const (
	AttrReadOnly  Attr = 0x01
	AttrHidden    Attr = 0x02
	AttrSystem    Attr = 0x04
	AttrDirectory Attr = 0x10
	AttrArchive   Attr = 0x20
	AttrSymlink   Attr = 0x40
)

// String returns the four-letter form used by listings: A, D, R, H or '_' for each of archive, directory, read-only,
// and hidden.
func (a Attr) String() string {
	var sb strings.Builder
	for _, f := range []struct {
		attr Attr
		c    byte
	}{
		{AttrArchive, 'A'},
		{AttrDirectory, 'D'},
		{AttrReadOnly, 'R'},
		{AttrHidden, 'H'},
	} {
		if a&f.attr != 0 {
			sb.WriteByte(f.c)
		} else {
			sb.WriteByte('_')
		}
	}

	return sb.String()
}

// Descriptor bits.
const (
	descEncrypted      = 0x01
	descDataDescriptor = 0x08
	descWidthMask      = 0xF0
)

// sizeWidth returns the width in bytes of the size fields selected by the descriptor's upper nibble.
func sizeWidth(descriptor byte) (int, bool) {
	switch descriptor & descWidthMask {
	case 0x00:
		return 0, true
	case 0x10:
		return 1, true
	case 0x20:
		return 2, true
	case 0x40:
		return 4, true
	case 0x80:
		return 8, true
	default:
		return 0, false
	}
}

// decodeUint decodes a zero-padded little-endian integer of 0, 1, 2, 4, or 8 bytes.
func decodeUint(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// encodeUint is the inverse of decodeUint.
func encodeUint(v uint64, width int) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:width]
}

// DataHeader is the variable part of a local file header.
//
// Entries whose descriptor has a zero width, usually directories, have no DataHeader and no payload.
type DataHeader struct {
	Method           codec.Method
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// Entry is one file or directory of an archive.
//
// Entry is produced by Archive.Entries and Archive.Files and is immutable.
type Entry struct {
	// Name is the decoded file name, with '\' kept as stored.
	Name string
	// RawName is the file name exactly as stored.
	RawName []byte

	Attr       Attr
	Modified   DOSTime
	Descriptor byte

	// Data is nil when the local file header has no variable part.
	Data *DataHeader

	// Offset is the logical offset of the payload, after any encryption header.
	Offset int64

	encHeader [zipcrypto.HeaderLen]byte

	archive *Archive
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Attr&AttrDirectory != 0
}

// IsSymlink reports whether the entry is a symbolic link whose payload is the link target.
func (e *Entry) IsSymlink() bool {
	return e.Attr&AttrSymlink != 0
}

// IsEncrypted reports whether the entry's payload is encrypted.
func (e *Entry) IsEncrypted() bool {
	return e.Descriptor&descEncrypted != 0
}

// HasDataDescriptor reports whether the data-descriptor bit is set, which changes the byte used to check passwords.
func (e *Entry) HasDataDescriptor() bool {
	return e.Descriptor&descDataDescriptor != 0
}

// Method returns the compression method, Store if the entry has no DataHeader.
func (e *Entry) Method() codec.Method {
	if e.Data == nil {
		return codec.Store
	}
	return e.Data.Method
}

// CompressedSize returns the size of the payload, 0 if the entry has no DataHeader.
func (e *Entry) CompressedSize() uint64 {
	if e.Data == nil {
		return 0
	}
	return e.Data.CompressedSize
}

// UncompressedSize returns the size of the decompressed data, 0 if the entry has no DataHeader.
func (e *Entry) UncompressedSize() uint64 {
	if e.Data == nil {
		return 0
	}
	return e.Data.UncompressedSize
}

// CRC32 returns the stored checksum, 0 if the entry has no DataHeader.
func (e *Entry) CRC32() uint32 {
	if e.Data == nil {
		return 0
	}
	return e.Data.CRC32
}

// Open returns the decrypted and decompressed contents of the entry on a fresh cursor, see Archive.OpenEntry.
//
// password is ignored for unencrypted entries.
func (e *Entry) Open(password []byte) (io.ReadCloser, error) {
	return e.archive.OpenEntry(e, password)
}
