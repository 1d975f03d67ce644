package volume

import (
	"io"
	"io/fs"
)

// Stream is a forward-only cursor over the logical stream of a Set.
//
// Volumes are opened lazily; when the usable bytes of the current volume run out, it is closed and reading continues
// after the header of the next one. Stream is not safe for concurrent use.
type Stream struct {
	set *Set

	// i is the index of the current volume, pos the number of usable bytes of it already consumed.
	i   int
	pos int64

	// f is the open current volume, nil until the next read.
	f fs.File

	// offset is the logical offset of the next byte.
	offset int64
	err    error
}

var _ io.ReadCloser = &Stream{}

// Offset returns the logical offset of the next byte to be read.
func (s *Stream) Offset() int64 {
	return s.offset
}

// Read implements io.Reader.
//
// io.EOF is returned only at the end of the last volume. Failure to open or read a volume returns an *Error.
func (s *Stream) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	if len(p) == 0 {
		return 0, nil
	}

	if !s.advance() {
		s.err = io.EOF
		return 0, s.err
	}

	if err := s.open(); err != nil {
		s.err = err
		return 0, err
	}

	if remaining := s.set.usable(s.i) - s.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := s.f.Read(p)
	s.pos += int64(n)
	s.offset += int64(n)

	if err == io.EOF {
		// the file is shorter than when it was discovered.
		err = io.ErrUnexpectedEOF
		if s.pos >= s.set.usable(s.i) {
			err = nil
		}
	}
	if err != nil {
		s.err = &Error{Op: "read", Name: s.set.names[s.i], Err: err}
		return n, s.err
	}

	return n, nil
}

// Discard skips the next n logical bytes.
//
// Whole volumes that are skipped over are never opened. Discarding past the end of the last volume returns
// io.ErrUnexpectedEOF along with the number of bytes actually skipped.
func (s *Stream) Discard(n int64) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}

	var discarded int64
	for n > 0 {
		if !s.advance() {
			return discarded, io.ErrUnexpectedEOF
		}

		m := min(n, s.set.usable(s.i)-s.pos)
		if s.f != nil {
			if err := skip(s.f, m); err != nil {
				s.err = &Error{Op: "seek", Name: s.set.names[s.i], Err: err}
				return discarded, s.err
			}
		}

		s.pos += m
		s.offset += m
		discarded += m
		n -= m
	}

	return discarded, nil
}

// Close closes the current volume if one is open. Subsequent reads fail.
func (s *Stream) Close() (err error) {
	if s.f != nil {
		err = s.f.Close()
		s.f = nil
	}
	if s.err == nil {
		s.err = fs.ErrClosed
	}
	return
}

// advance moves past exhausted volumes and reports whether there is anything left to read.
func (s *Stream) advance() bool {
	for s.i < len(s.set.names) && s.pos >= s.set.usable(s.i) {
		if s.i == len(s.set.names)-1 {
			return false
		}

		if s.f != nil {
			_ = s.f.Close()
			s.f = nil
		}
		s.i++
		s.pos = 0
	}

	return s.i < len(s.set.names)
}

// open opens the current volume if needed, positioned at s.pos.
func (s *Stream) open() error {
	if s.f != nil {
		return nil
	}

	name := s.set.names[s.i]
	f, err := s.set.fsys.Open(name)
	if err != nil {
		return &Error{Op: "open", Name: name, Err: err}
	}

	head, _ := s.set.framing(s.i)
	if err = skip(f, head+s.pos); err != nil {
		_ = f.Close()
		return &Error{Op: "seek", Name: name, Err: err}
	}

	s.f = f
	return nil
}
