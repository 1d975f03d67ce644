package alz

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/flate"
	"github.com/nguyengg/unalz/codec"
	"github.com/nguyengg/unalz/volume"
	"github.com/nguyengg/unalz/zipcrypto"
	"github.com/stretchr/testify/require"
)

// testEntry describes one local file header and its payload for archiveBuilder.
type testEntry struct {
	name    []byte
	attr    Attr
	modTime uint32

	// noData writes a zero-width descriptor with no variable part and no payload.
	noData bool
	// width is the size field width, defaulting to 4.
	width  int
	method codec.Method
	data   []byte
	// payload, if set, is written instead of compressing data.
	payload []byte
	// crc, if set, overrides the CRC-32 of data.
	crc *uint32

	password       string
	dataDescriptor bool
}

// archiveBuilder writes ALZ records byte by byte.
type archiveBuilder struct {
	t   *testing.T
	buf bytes.Buffer
}

func newArchiveBuilder(t *testing.T) *archiveBuilder {
	b := &archiveBuilder{t: t}
	b.sig(sigFileHeader)
	b.buf.Write([]byte{0x0a, 0x00, 0x00, 0x00})
	return b
}

func (b *archiveBuilder) sig(sig uint32) *archiveBuilder {
	b.buf.Write(binary.LittleEndian.AppendUint32(nil, sig))
	return b
}

func (b *archiveBuilder) raw(p ...byte) *archiveBuilder {
	b.buf.Write(p)
	return b
}

func (b *archiveBuilder) entry(e testEntry) *archiveBuilder {
	t := b.t
	t.Helper()

	width := e.width
	if width == 0 {
		width = 4
	}
	if e.noData {
		width = 0
	}

	var descriptor byte
	switch width {
	case 0:
	case 1:
		descriptor = 0x10
	case 2:
		descriptor = 0x20
	case 4:
		descriptor = 0x40
	case 8:
		descriptor = 0x80
	default:
		t.Fatalf("invalid width %d", width)
	}
	if e.password != "" {
		descriptor |= descEncrypted
	}
	if e.dataDescriptor {
		descriptor |= descDataDescriptor
	}

	payload := e.payload
	if payload == nil && !e.noData {
		switch e.method {
		case codec.Deflate:
			var buf bytes.Buffer
			w, err := flate.NewWriter(&buf, flate.DefaultCompression)
			require.NoError(t, err)
			_, err = w.Write(e.data)
			require.NoError(t, err)
			require.NoError(t, w.Close())
			payload = buf.Bytes()
		default:
			payload = e.data
		}
	}

	crc := crc32.ChecksumIEEE(e.data)
	if e.crc != nil {
		crc = *e.crc
	}

	b.sig(sigLocalFileHeader)
	b.buf.Write(binary.LittleEndian.AppendUint16(nil, uint16(len(e.name))))
	b.buf.WriteByte(byte(e.attr))
	b.buf.Write(binary.LittleEndian.AppendUint32(nil, e.modTime))
	b.buf.WriteByte(descriptor)
	b.buf.WriteByte(0)

	if width > 0 {
		b.buf.WriteByte(byte(e.method))
		b.buf.WriteByte(0)
		b.buf.Write(binary.LittleEndian.AppendUint32(nil, crc))
		b.buf.Write(encodeUint(uint64(len(payload)), width))
		b.buf.Write(encodeUint(uint64(len(e.data)), width))
	}

	b.buf.Write(e.name)

	if e.password != "" {
		header := [zipcrypto.HeaderLen]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
		header[zipcrypto.HeaderLen-1] = zipcrypto.CheckByte(crc, e.modTime, e.dataDescriptor)

		keys := zipcrypto.New([]byte(e.password))
		keys.Encrypt(header[:])
		b.buf.Write(header[:])

		payload = bytes.Clone(payload)
		keys.Encrypt(payload)
	}

	b.buf.Write(payload)
	return b
}

// end writes a central directory and end-of-central-directory record.
func (b *archiveBuilder) end() *archiveBuilder {
	b.sig(sigCentralDirectory)
	b.buf.Write(make([]byte, centralDirectoryBodyLen))
	b.sig(sigEndOfCentralDir)
	return b
}

func (b *archiveBuilder) bytes() []byte {
	return bytes.Clone(b.buf.Bytes())
}

// splitVolumes frames data into volumes named after base, cutting the logical stream at the given offsets.
func splitVolumes(base string, data []byte, cuts ...int) fstest.MapFS {
	var parts [][]byte
	prev := 0
	for _, c := range cuts {
		parts = append(parts, data[prev:c])
		prev = c
	}
	parts = append(parts, data[prev:])

	fsys := fstest.MapFS{}
	for i, part := range parts {
		var v []byte
		if i > 0 {
			v = append(v, bytes.Repeat([]byte{0xee}, volume.HeaderSize)...)
		}
		v = append(v, part...)
		if i < len(parts)-1 {
			v = append(v, bytes.Repeat([]byte{0xff}, volume.TailSize)...)
		}
		fsys[volume.Name(base, i)] = &fstest.MapFile{Data: v}
	}

	return fsys
}

// openBytes opens data as a single-volume archive.
func openBytes(t *testing.T, data []byte) *Archive {
	t.Helper()
	return openFS(t, fstest.MapFS{"test.alz": &fstest.MapFile{Data: data}}, "test.alz")
}

func openFS(t *testing.T, fsys fstest.MapFS, name string) *Archive {
	t.Helper()

	a, err := Open(name, func(opts *Options) {
		opts.FileSystem = fsys
	})
	require.NoError(t, err)
	return a
}

func ptr[T any](v T) *T {
	return &v
}
