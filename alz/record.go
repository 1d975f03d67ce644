package alz

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/nguyengg/unalz/codec"
	"github.com/nguyengg/unalz/volume"
	"github.com/nguyengg/unalz/zipcrypto"
)

// Record signatures, little-endian.
const (
	sigFileHeader       = 0x015A4C41 // "ALZ\x01"
	sigLocalFileHeader  = 0x015A4C42 // "BLZ\x01"
	sigCentralDirectory = 0x015A4C43 // "CLZ\x01"
	sigEndOfCentralDir  = 0x025A4C43 // "CLZ\x02"
	sigSplitMarker      = 0x035A4C43 // "CLZ\x03"
	sigComment          = 0x015A4C45 // "ELZ\x01"
)

const (
	fileHeaderBodyLen       = 4
	localFileHeadLen        = 9
	centralDirectoryBodyLen = 12
	maxFilenameLen          = 4096
)

// record is one of the top-level structures of an archive.
//
// The concrete types are fileHeader, *Entry, centralDirectory, endOfCentralDir, splitMarker, and comment.
type record any

type (
	fileHeader       struct{}
	centralDirectory struct{}
	endOfCentralDir  struct{}
	splitMarker      struct{}
	comment          struct{}
)

// parser walks the records of one Stream.
type parser struct {
	archive    *Archive
	stream     *volume.Stream
	seenHeader bool
	buf        [localFileHeadLen]byte
}

// next reads the next record.
//
// For an *Entry, the stream is left positioned at the start of the payload. io.EOF is returned only if the stream ends
// cleanly on a record boundary after the ALZ file header. All other errors are fatal.
func (p *parser) next() (record, error) {
	start := p.stream.Offset()

	sig, err := p.readUint32()
	switch {
	case err == io.EOF && p.seenHeader:
		return nil, io.EOF
	case err == io.EOF:
		return nil, ErrNotALZ
	case err != nil:
		return nil, formatError(start, "read signature", err)
	}

	switch sig {
	case sigFileHeader:
		if err = p.skip(fileHeaderBodyLen); err != nil {
			return nil, formatError(start, "read ALZ file header", err)
		}
		p.seenHeader = true
		return fileHeader{}, nil

	case sigLocalFileHeader:
		e, err := p.readLocalFileHeader(start)
		if err != nil {
			return nil, err
		}
		return e, nil

	case sigCentralDirectory:
		if err = p.skip(centralDirectoryBodyLen); err != nil {
			return nil, formatError(start, "read central directory", err)
		}
		return centralDirectory{}, nil

	case sigEndOfCentralDir:
		return endOfCentralDir{}, nil

	case sigSplitMarker:
		return splitMarker{}, nil

	case sigComment:
		// the size comes from the first volume's tail and includes the signature.
		if size := int64(binary.LittleEndian.Uint32(p.archive.tail[4:8])); size > 4 {
			if err = p.skip(size - 4); err != nil {
				return nil, formatError(start, "skip comment", err)
			}
		}
		return comment{}, nil

	default:
		if !p.seenHeader {
			return nil, ErrNotALZ
		}
		return nil, &FormatError{Offset: start, Msg: "unknown signature"}
	}
}

func (p *parser) readLocalFileHeader(start int64) (*Entry, error) {
	head := p.buf[:localFileHeadLen]
	if _, err := io.ReadFull(p.stream, head); err != nil {
		return nil, formatError(start, "read local file header", err)
	}

	nameLen := int(binary.LittleEndian.Uint16(head[0:2]))
	e := &Entry{
		Attr:       Attr(head[2]),
		Modified:   DOSTime(binary.LittleEndian.Uint32(head[3:7])),
		Descriptor: head[7],
		archive:    p.archive,
	}

	width, ok := sizeWidth(e.Descriptor)
	if !ok {
		return nil, &FormatError{Offset: start, Msg: "invalid size field width"}
	}

	if width > 0 {
		// method:1, unknown:1, crc:4, then the two sizes.
		b := make([]byte, 6+2*width)
		if _, err := io.ReadFull(p.stream, b); err != nil {
			return nil, formatError(start, "read local file header", err)
		}

		e.Data = &DataHeader{
			Method:           codec.Method(b[0]),
			CRC32:            binary.LittleEndian.Uint32(b[2:6]),
			CompressedSize:   decodeUint(b[6 : 6+width]),
			UncompressedSize: decodeUint(b[6+width:]),
		}
		if e.Data.CompressedSize > 1<<62 {
			return nil, &FormatError{Offset: start, Msg: "compressed size out of range"}
		}
	}

	if nameLen == 0 || nameLen > maxFilenameLen {
		return nil, &FormatError{Offset: start, Msg: "invalid file name length"}
	}
	e.RawName = make([]byte, nameLen)
	if _, err := io.ReadFull(p.stream, e.RawName); err != nil {
		return nil, formatError(start, "read file name", err)
	}
	e.Name = DecodeFilename(e.RawName)

	if e.IsEncrypted() {
		if _, err := io.ReadFull(p.stream, e.encHeader[:]); err != nil {
			return nil, formatError(start, "read encryption header", err)
		}
	}

	e.Offset = p.stream.Offset()
	return e, nil
}

// skipPayload moves the stream to the end of e's payload, however much of it has been read.
func (p *parser) skipPayload(e *Entry) error {
	end := e.Offset + int64(e.CompressedSize())
	if n := end - p.stream.Offset(); n > 0 {
		if _, err := p.stream.Discard(n); err != nil {
			return formatError(e.Offset, "skip payload", err)
		}
	}

	return nil
}

func (p *parser) readUint32() (uint32, error) {
	b := p.buf[:4]
	if _, err := io.ReadFull(p.stream, b); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

func (p *parser) skip(n int64) error {
	_, err := p.stream.Discard(n)
	return err
}

// formatError wraps err in a FormatError unless it is a VolumeError, which is passed through as is.
func formatError(offset int64, msg string, err error) error {
	var ve *VolumeError
	if errors.As(err, &ve) {
		return err
	}

	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}

	return &FormatError{Offset: offset, Msg: msg, Err: err}
}

// checkByte returns the byte the last decrypted byte of e's encryption header must match.
func (e *Entry) checkByte() byte {
	return zipcrypto.CheckByte(e.CRC32(), uint32(e.Modified), e.HasDataDescriptor())
}
