// Package alz reads ALZ archives.
//
// An archive is walked sequentially, record by record, from the logical stream of its volumes. Entries are produced in
// on-disk order; their contents can be read during the walk with Archive.Files, or afterwards on a fresh cursor.
package alz

import (
	"hash"
	"hash/crc32"
	"io"
	"iter"
	"strings"

	"github.com/nguyengg/unalz/codec"
	"github.com/nguyengg/unalz/volume"
	"github.com/nguyengg/unalz/zipcrypto"
)

// Archive is an opened ALZ archive.
//
// Archive holds no open files; each iteration and each Archive.OpenEntry opens its own cursor over the volumes, so an
// Archive may be used from multiple goroutines.
type Archive struct {
	// Name is the name of the first volume.
	Name string

	set  *volume.Set
	tail [volume.TailSize]byte
}

// Options customises Open.
type Options struct {
	// FileSystem is used to discover and read volumes. Defaults to volume.OS.
	FileSystem volume.FileSystem
}

// Open discovers the volumes of the archive whose first volume is name.
//
// Open does not parse any record; the returned error, if any, is a VolumeError.
func Open(name string, optFns ...func(*Options)) (*Archive, error) {
	opts := &Options{FileSystem: volume.OS}
	for _, fn := range optFns {
		fn(opts)
	}

	set, err := volume.Discover(opts.FileSystem, name)
	if err != nil {
		return nil, err
	}

	a := &Archive{Name: name, set: set}
	if a.tail, err = set.Tail(); err != nil {
		return nil, err
	}

	return a, nil
}

// Volumes returns the names of the volumes in order.
func (a *Archive) Volumes() []string {
	return a.set.Names()
}

// Size returns the length of the logical stream, excluding volume framing.
func (a *Archive) Size() int64 {
	return a.set.Size()
}

// Entries returns an iterator over the entries in on-disk order.
//
// Every call starts a new walk from the beginning of the archive. The walk stops at the end-of-central-directory
// record or at a clean end of the stream. A fatal error (FormatError, VolumeError, ErrNotALZ) is yielded once with a
// nil Entry and ends the walk.
//
// The entries may be kept and opened after the walk, from any goroutine. Use Files to read the payloads from the
// walk's own cursor instead.
func (a *Archive) Entries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for f, err := range a.Files() {
			var e *Entry
			if f != nil {
				e = f.Entry
			}
			if !yield(e, err) {
				return
			}
		}
	}
}

// File is an Entry produced by Archive.Files, still positioned at its payload.
//
// A File is only valid inside the loop body that received it and must not be shared with other goroutines. Its Entry
// has no such restriction.
type File struct {
	*Entry

	stream *volume.Stream
}

// Open returns the decrypted and decompressed contents of the file, read from the cursor of the walk.
//
// The returned reader is only valid until the loop body returns. If the payload has already been read from, Open falls
// back to Archive.OpenEntry.
func (f *File) Open(password []byte) (io.ReadCloser, error) {
	if f.stream.Offset() != f.Offset {
		return f.archive.OpenEntry(f.Entry, password)
	}

	return f.archive.newReader(f.Entry, f.stream, nil, password)
}

// Files is like Entries but yields each entry while the walk is positioned at its payload, so that it can be read
// without opening the volumes again.
//
// Any part of a payload not read by the time the loop body returns is skipped.
func (a *Archive) Files() iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		stream := a.set.Stream()
		defer stream.Close()

		p := &parser{archive: a, stream: stream}
		for {
			rec, err := p.next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}

			switch rec := rec.(type) {
			case *Entry:
				if !yield(&File{Entry: rec, stream: stream}, nil) {
					return
				}

				if err = p.skipPayload(rec); err != nil {
					yield(nil, err)
					return
				}

			case endOfCentralDir:
				return
			}
		}
	}
}

// List walks the whole archive and returns all entries.
func (a *Archive) List() ([]*Entry, error) {
	var entries []*Entry
	for e, err := range a.Entries() {
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// OpenEntry returns the decrypted and decompressed contents of an entry previously produced by Entries.
//
// A new cursor is opened over the volumes and positioned at the entry's payload, so entries can be opened in any order
// and concurrently. The returned reader must be closed to release the volume it has open.
//
// Errors scoped to the entry are a DecryptionError, returned right away, or a CodecError or ChecksumError, returned
// from Read once the data has been consumed. A ChecksumError is only returned after every decompressed byte has been.
// A VolumeError may be returned at any point.
func (a *Archive) OpenEntry(e *Entry, password []byte) (io.ReadCloser, error) {
	stream := a.set.Stream()
	if _, err := stream.Discard(e.Offset); err != nil {
		_ = stream.Close()
		return nil, formatError(e.Offset, "seek to payload", err)
	}

	rc, err := a.newReader(e, stream, stream, password)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}

	return rc, nil
}

// newReader builds the extraction pipeline for e over src, which must be positioned at the start of the payload.
//
// closer, if not nil, is closed along with the returned reader.
func (a *Archive) newReader(e *Entry, src io.Reader, closer io.Closer, password []byte) (io.ReadCloser, error) {
	if e.Data == nil {
		return &entryReader{Reader: strings.NewReader(""), closer: closer}, nil
	}

	src = io.LimitReader(src, int64(e.Data.CompressedSize))

	if e.IsEncrypted() {
		if len(password) == 0 {
			return nil, &DecryptionError{Name: e.Name, Err: ErrPasswordNotSet}
		}

		keys := zipcrypto.New(password)
		if !keys.CheckHeader(e.encHeader, e.checkByte()) {
			return nil, &DecryptionError{Name: e.Name, Err: ErrInvalidPassword}
		}

		src = zipcrypto.NewReader(src, keys)
	}

	dec, err := codec.NewDecoder(e.Data.Method, src, e.Data.UncompressedSize)
	if err != nil {
		return nil, &CodecError{Name: e.Name, Method: e.Data.Method, Err: err}
	}

	return &entryReader{
		Reader: &checksumReader{e: e, r: dec, h: crc32.NewIEEE()},
		closer: closer,
		dec:    dec,
	}, nil
}

// entryReader closes the decoder and the cursor it reads from.
type entryReader struct {
	io.Reader
	closer io.Closer
	dec    io.Closer
}

func (r *entryReader) Close() (err error) {
	if r.dec != nil {
		err = r.dec.Close()
	}
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return
}

// checksumReader computes the CRC-32 of everything read and compares it against the stored value at EOF.
//
// Decoder errors are wrapped in CodecError.
type checksumReader struct {
	e   *Entry
	r   io.Reader
	h   hash.Hash32
	err error
}

func (r *checksumReader) Read(p []byte) (n int, err error) {
	if r.err != nil {
		return 0, r.err
	}

	n, err = r.r.Read(p)
	r.h.Write(p[:n])

	switch {
	case err == io.EOF:
		if sum := r.h.Sum32(); sum != r.e.Data.CRC32 {
			err = &ChecksumError{Name: r.e.Name, Expected: r.e.Data.CRC32, Actual: sum}
		}
	case err != nil:
		err = &CodecError{Name: r.e.Name, Method: r.e.Data.Method, Err: err}
	}

	r.err = err
	return
}
