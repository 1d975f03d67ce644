// Package volume presents the physical files of a (possibly split) ALZ archive as one logical byte stream.
//
// Volume 0 is the ".alz" file itself. A split archive continues in ".a00", ".a01", ..., ".a99", ".b00", and so on,
// up to MaxVolumes files in total. Every volume after the first starts with an 8-byte header, and every volume
// before the last ends with a 16-byte tail. Neither is part of the logical stream.
package volume

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

const (
	// HeaderSize is the length of the opaque header at the start of every volume but the first.
	HeaderSize = 8
	// TailSize is the length of the opaque tail at the end of every volume but the last.
	TailSize = 16
	// MaxVolumes is the maximum number of volumes in a set.
	MaxVolumes = 1000
)

// ErrTooShort is returned when a volume is smaller than its header and tail combined.
var ErrTooShort = errors.New("volume shorter than its framing")

// Error records a failure to discover, open, or read one volume.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s volume %q error: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FileSystem abstracts the operations needed to discover and read volumes.
//
// fstest.MapFS satisfies this interface, as does the S3-backed implementation in internal/s3fs.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	Open(name string) (fs.File, error)
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (osFS) Open(name string) (fs.File, error)     { return os.Open(name) }

// OS is the FileSystem backed by the local file system.
var OS FileSystem = osFS{}

// Name returns the name of volume i given the name of volume 0.
//
// The last three characters of base are replaced with a letter and a two-digit number: volume 1 is "a00", volume
// 100 is "a99", volume 101 is "b00".
func Name(base string, i int) string {
	if i == 0 || len(base) < 3 {
		return base
	}

	return fmt.Sprintf("%s%c%02d", base[:len(base)-3], 'a'+(i-1)/100, (i-1)%100)
}

// Set is an ordered, immutable list of volumes along with their physical sizes.
type Set struct {
	fsys  FileSystem
	names []string
	sizes []int64
}

// Discover returns the Set whose first volume is the given name.
//
// Volumes are probed in order until the first one that does not exist. Any other error, or a volume that is too
// small to contain its framing, fails with an *Error.
func Discover(fsys FileSystem, name string) (*Set, error) {
	if fsys == nil {
		fsys = OS
	}

	s := &Set{fsys: fsys}
	for i := range MaxVolumes {
		vn := Name(name, i)
		fi, err := fsys.Stat(vn)
		if err != nil {
			if i > 0 && errors.Is(err, fs.ErrNotExist) {
				break
			}

			return nil, &Error{Op: "stat", Name: vn, Err: err}
		}
		if fi.IsDir() {
			return nil, &Error{Op: "stat", Name: vn, Err: errors.New("is a directory")}
		}

		s.names = append(s.names, vn)
		s.sizes = append(s.sizes, fi.Size())
		if len(name) < 3 {
			break
		}
	}

	for i, size := range s.sizes {
		if head, tail := s.framing(i); size < head+tail {
			return nil, &Error{Op: "discover", Name: s.names[i], Err: ErrTooShort}
		}
	}

	return s, nil
}

// Len returns the number of volumes.
func (s *Set) Len() int {
	return len(s.names)
}

// Names returns the names of the volumes in order.
func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}

// Size returns the length of the logical stream.
func (s *Set) Size() (n int64) {
	for i := range s.sizes {
		n += s.usable(i)
	}
	return
}

// framing returns the header and tail sizes of volume i.
func (s *Set) framing(i int) (head, tail int64) {
	if i > 0 {
		head = HeaderSize
	}
	if i < len(s.names)-1 {
		tail = TailSize
	}
	return
}

// usable returns the number of logical bytes in volume i.
func (s *Set) usable(i int) int64 {
	head, tail := s.framing(i)
	return s.sizes[i] - head - tail
}

// Tail returns the last TailSize bytes of volume 0.
//
// For a split archive this is the framing tail; for a single volume it is simply the last bytes of the file. A
// volume 0 smaller than TailSize yields zeroes.
func (s *Set) Tail() (tail [TailSize]byte, err error) {
	if s.sizes[0] < TailSize {
		return tail, nil
	}

	f, err := s.fsys.Open(s.names[0])
	if err != nil {
		return tail, &Error{Op: "open", Name: s.names[0], Err: err}
	}
	defer f.Close()

	if ra, ok := f.(io.ReaderAt); ok {
		var n int
		if n, err = ra.ReadAt(tail[:], s.sizes[0]-TailSize); err == io.EOF && n == TailSize {
			err = nil
		}
	} else if err = skip(f, s.sizes[0]-TailSize); err == nil {
		_, err = io.ReadFull(f, tail[:])
	}
	if err != nil {
		return tail, &Error{Op: "read", Name: s.names[0], Err: err}
	}

	return tail, nil
}

// Stream returns a new Stream positioned at the start of the logical stream.
//
// Each Stream is an independent cursor; callers may open several over the same Set.
func (s *Set) Stream() *Stream {
	return &Stream{set: s}
}

// skip advances f by n bytes, seeking if f supports it.
func skip(f io.Reader, n int64) error {
	if n == 0 {
		return nil
	}

	if seeker, ok := f.(io.Seeker); ok {
		_, err := seeker.Seek(n, io.SeekCurrent)
		return err
	}

	if m, err := io.CopyN(io.Discard, f, n); err != nil {
		if err == io.EOF && m < n {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	return nil
}
