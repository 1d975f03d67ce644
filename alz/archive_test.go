package alz

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/nguyengg/unalz/codec"
	"github.com/nguyengg/unalz/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tALZ holds a single Deflate entry "t/t.txt" with contents "42".
var tALZ = []byte{
	0x41, 0x4c, 0x5a, 0x01, 0x0a, 0x00, 0x00, 0x00, 0x42, 0x4c, 0x5a, 0x01, 0x07, 0x00, 0x20, 0xd8,
	0xb2, 0x8e, 0x41, 0x20, 0x00, 0x02, 0x00, 0x88, 0xb0, 0x24, 0x32, 0x04, 0x00, 0x02, 0x00, 0x74,
	0x2f, 0x74, 0x2e, 0x74, 0x78, 0x74, 0x33, 0x31, 0x02, 0x00, 0x43, 0x4c, 0x5a, 0x01, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x43, 0x4c, 0x5a, 0x02,
}

// opener is either an *Entry or a *File.
type opener interface {
	Open(password []byte) (io.ReadCloser, error)
}

// readAll opens e and reads it whole, returning whatever was read along with the error.
func readAll(t *testing.T, e opener, password string) ([]byte, error) {
	t.Helper()

	var pw []byte
	if password != "" {
		pw = []byte(password)
	}

	rc, err := e.Open(pw)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func TestArchive_KnownArchive(t *testing.T) {
	a := openBytes(t, tALZ)

	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "t/t.txt", e.Name)
	assert.Equal(t, AttrArchive, e.Attr)
	assert.Equal(t, byte(0x20), e.Descriptor)
	assert.Equal(t, DOSTime(0x418eb2d8), e.Modified)
	assert.Equal(t, "2012-12-14 22:22:48", e.Modified.String())
	assert.False(t, e.IsEncrypted())
	assert.False(t, e.IsDir())
	require.NotNil(t, e.Data)
	assert.Equal(t, DataHeader{
		Method:           codec.Deflate,
		CRC32:            0x3224b088,
		CompressedSize:   4,
		UncompressedSize: 2,
	}, *e.Data)
	assert.Equal(t, int64(38), e.Offset)

	data, err := readAll(t, e, "")
	assert.NoError(t, err)
	assert.Equal(t, "42", string(data))
}

func TestArchive_Scenarios(t *testing.T) {
	hello := []byte("hello")

	tests := []struct {
		name     string
		entry    testEntry
		password string
		want     []byte
		wantErr  error
	}{
		{
			name:  "store",
			entry: testEntry{name: []byte("hello.txt"), attr: AttrArchive, method: codec.Store, data: hello},
			want:  hello,
		},
		{
			name:  "deflate",
			entry: testEntry{name: []byte("hello.txt"), attr: AttrArchive, method: codec.Deflate, data: hello},
			want:  hello,
		},
		{
			name: "bzip2",
			entry: testEntry{
				name:   []byte("hello.txt"),
				method: codec.Bzip2,
				data:   []byte("hello world"),
				payload: []byte{
					0x44, 0x4c, 0x5a, 0x01, 0x00, 0x00, 0x03, 0x23, 0x00, 0x80, 0x00, 0x0c, 0x89, 0x21, 0x00,
					0x40, 0x00, 0x44, 0x06, 0x69, 0x08, 0x60, 0x43, 0x6d, 0x02, 0xa8, 0x4f, 0x44, 0x4c, 0x5a,
					0x02,
				},
			},
			want: []byte("hello world"),
		},
		{
			name:     "encrypted store",
			entry:    testEntry{name: []byte("hello.txt"), method: codec.Store, data: hello, password: "test"},
			password: "test",
			want:     hello,
		},
		{
			name:     "encrypted deflate",
			entry:    testEntry{name: []byte("hello.txt"), method: codec.Deflate, data: hello, password: "test"},
			password: "test",
			want:     hello,
		},
		{
			name: "encrypted with data descriptor",
			entry: testEntry{
				name:           []byte("hello.txt"),
				modTime:        0x4e8c2209,
				method:         codec.Deflate,
				data:           hello,
				password:       "test",
				dataDescriptor: true,
			},
			password: "test",
			want:     hello,
		},
		{
			name:     "wrong password",
			entry:    testEntry{name: []byte("hello.txt"), method: codec.Deflate, data: hello, password: "test"},
			password: "wrong",
			wantErr:  ErrInvalidPassword,
		},
		{
			name: "wrong password with data descriptor",
			entry: testEntry{
				name:           []byte("hello.txt"),
				modTime:        0x4e8c2209,
				method:         codec.Store,
				data:           hello,
				password:       "test",
				dataDescriptor: true,
			},
			password: "wrong",
			wantErr:  ErrInvalidPassword,
		},
		{
			name:    "no password",
			entry:   testEntry{name: []byte("hello.txt"), method: codec.Store, data: hello, password: "test"},
			wantErr: ErrPasswordNotSet,
		},
		{
			name:  "empty file",
			entry: testEntry{name: []byte("empty"), method: codec.Store, data: []byte{}},
			want:  []byte{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openBytes(t, newArchiveBuilder(t).entry(tt.entry).end().bytes())

			entries, err := a.List()
			require.NoError(t, err)
			require.Len(t, entries, 1)

			got, err := readAll(t, entries[0], tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				var de *DecryptionError
				assert.ErrorAs(t, err, &de)
				assert.False(t, IsFatal(err))
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArchive_Filenames(t *testing.T) {
	a := openBytes(t, newArchiveBuilder(t).
		entry(testEntry{name: []byte("테스트.txt"), data: []byte("a")}).
		entry(testEntry{name: []byte("\xbf\xee\xbf\xb5.txt"), data: []byte("b")}).
		entry(testEntry{name: []byte(`dir\file.txt`), data: []byte("c")}).
		end().
		bytes())

	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "테스트.txt", entries[0].Name)
	assert.Equal(t, "운영.txt", entries[1].Name)
	assert.Equal(t, []byte("\xbf\xee\xbf\xb5.txt"), entries[1].RawName)
	assert.Equal(t, `dir\file.txt`, entries[2].Name)
}

func TestArchive_Entries(t *testing.T) {
	data := newArchiveBuilder(t).
		entry(testEntry{name: []byte("dir"), attr: AttrDirectory, noData: true}).
		entry(testEntry{name: []byte("dir/a.txt"), attr: AttrArchive | AttrReadOnly, method: codec.Deflate, data: []byte("aaaa")}).
		raw(0x43, 0x4c, 0x5a, 0x03). // split marker
		entry(testEntry{name: []byte("dir/b.txt"), attr: AttrArchive, method: codec.Store, data: []byte("bb")}).
		end().
		bytes()

	a := openBytes(t, data)

	type result struct {
		name string
		data string
	}
	var got []result
	for e, err := range a.Files() {
		require.NoError(t, err)

		// reading only the even entries leaves the odd ones to be skipped.
		if len(got)%2 == 1 {
			got = append(got, result{name: e.Name})
			continue
		}

		b, err := readAll(t, e, "")
		require.NoError(t, err)
		got = append(got, result{name: e.Name, data: string(b)})
	}

	assert.Equal(t, []result{
		{name: "dir"},
		{name: "dir/a.txt"},
		{name: "dir/b.txt", data: "bb"},
	}, got)
}

func TestArchive_DirectoryEntry(t *testing.T) {
	a := openBytes(t, newArchiveBuilder(t).
		entry(testEntry{name: []byte("dir"), attr: AttrDirectory, noData: true}).
		end().
		bytes())

	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.True(t, e.IsDir())
	assert.Nil(t, e.Data)
	assert.Equal(t, uint64(0), e.CompressedSize())
	assert.Equal(t, codec.Store, e.Method())

	data, err := readAll(t, e, "")
	assert.NoError(t, err)
	assert.Empty(t, data)
}

func TestArchive_PerEntryErrors(t *testing.T) {
	a := openBytes(t, newArchiveBuilder(t).
		entry(testEntry{name: []byte("bad-crc"), method: codec.Store, data: []byte("hello"), crc: ptr(uint32(1))}).
		entry(testEntry{name: []byte("bad-method"), method: codec.Method(9), data: []byte("hello")}).
		entry(testEntry{name: []byte("bad-deflate"), method: codec.Deflate, data: []byte("hello"), payload: []byte{0xff, 0xff}}).
		entry(testEntry{name: []byte("ok"), method: codec.Store, data: []byte("ok")}).
		end().
		bytes())

	var names []string
	for e, err := range a.Files() {
		require.NoError(t, err)
		names = append(names, e.Name)

		data, err := readAll(t, e, "")
		switch e.Name {
		case "bad-crc":
			var ce *ChecksumError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, uint32(1), ce.Expected)
			assert.Equal(t, crc32.ChecksumIEEE([]byte("hello")), ce.Actual)
			// the bytes are still returned.
			assert.Equal(t, "hello", string(data))
			assert.False(t, IsFatal(err))
		case "bad-method":
			var ce *CodecError
			require.ErrorAs(t, err, &ce)
			assert.ErrorIs(t, err, codec.ErrUnknownMethod)
			assert.False(t, IsFatal(err))
		case "bad-deflate":
			var ce *CodecError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, codec.Deflate, ce.Method)
			assert.False(t, IsFatal(err))
		case "ok":
			assert.NoError(t, err)
			assert.Equal(t, "ok", string(data))
		}
	}

	assert.Equal(t, []string{"bad-crc", "bad-method", "bad-deflate", "ok"}, names)
}

func TestArchive_FatalErrors(t *testing.T) {
	valid := newArchiveBuilder(t).entry(testEntry{name: []byte("a"), data: []byte("hello")}).end().bytes()

	badWidth := bytes.Clone(valid)
	// descriptor of the first local file header.
	badWidth[8+4+7] = 0x30

	zeroName := bytes.Clone(valid)
	binary.LittleEndian.PutUint16(zeroName[8+4:], 0)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
		wantFE  bool
	}{
		{
			name:    "empty",
			data:    []byte{},
			wantErr: ErrNotALZ,
		},
		{
			name:    "not alz",
			data:    []byte("PK\x03\x04 this is a zip file"),
			wantErr: ErrNotALZ,
		},
		{
			name:   "unknown signature after header",
			data:   append(bytes.Clone(valid[:len(valid)-4-12-4]), 'X', 'L', 'Z', 0x01),
			wantFE: true,
		},
		{
			name:   "invalid width",
			data:   badWidth,
			wantFE: true,
		},
		{
			name:   "zero file name length",
			data:   zeroName,
			wantFE: true,
		},
		{
			name:    "truncated header",
			data:    valid[:8+4+5],
			wantErr: io.ErrUnexpectedEOF,
			wantFE:  true,
		},
		{
			name:    "truncated payload",
			data:    valid[:len(valid)-4-12-4-2],
			wantErr: io.ErrUnexpectedEOF,
			wantFE:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openBytes(t, tt.data)

			var err error
			for _, err = range a.Entries() {
				if err != nil {
					break
				}
			}

			require.Error(t, err)
			assert.True(t, IsFatal(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantFE {
				var fe *FormatError
				assert.ErrorAs(t, err, &fe)
			}
		})
	}
}

func TestArchive_CleanEOF(t *testing.T) {
	// no central directory or end record at all.
	data := newArchiveBuilder(t).entry(testEntry{name: []byte("a"), data: []byte("a")}).bytes()

	entries, err := openBytes(t, data).List()
	assert.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestArchive_Comment(t *testing.T) {
	body := []byte("archive comment")

	b := newArchiveBuilder(t).entry(testEntry{name: []byte("a"), data: []byte("a")})
	b.sig(sigComment).raw(body...)
	b.entry(testEntry{name: []byte("b"), data: []byte("b")}).end()

	// the end information follows the end record; bytes 4..8 hold the size of the comment section.
	tail := make([]byte, volume.TailSize)
	binary.LittleEndian.PutUint32(tail[4:], uint32(4+len(body)))
	b.raw(tail...)

	entries, err := openBytes(t, b.bytes()).List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[1].Name)
}

func TestArchive_SizeWidths(t *testing.T) {
	for _, width := range []int{1, 2, 4, 8} {
		data := bytes.Repeat([]byte{'x'}, 200)
		a := openBytes(t, newArchiveBuilder(t).
			entry(testEntry{name: []byte("x"), width: width, method: codec.Store, data: data}).
			end().
			bytes())

		entries, err := a.List()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, uint64(200), entries[0].UncompressedSize())

		got, err := readAll(t, entries[0], "")
		assert.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestDecodeUint(t *testing.T) {
	values := []uint64{0, 1, 0x7f, 0xff, 0x1234, 0xffff, 0xdeadbeef, 0x0123456789abcdef, ^uint64(0)}

	for _, width := range []int{0, 1, 2, 4, 8} {
		for _, v := range values {
			if width < 8 && v >= 1<<(8*width) {
				continue
			}

			b := encodeUint(v, width)
			assert.Len(t, b, width)
			assert.Equal(t, v, decodeUint(b))
			assert.Equal(t, b, encodeUint(decodeUint(b), width))
		}
	}
}

func TestArchive_MultiVolume(t *testing.T) {
	content := bytes.Repeat([]byte("Mr. Jock, TV quiz PhD, bags few lynx\n"), 50)

	data := newArchiveBuilder(t).
		entry(testEntry{name: []byte("a.txt"), method: codec.Deflate, data: content, password: "test"}).
		entry(testEntry{name: []byte("b.txt"), method: codec.Store, data: content}).
		end().
		bytes()

	single := openBytes(t, data)
	want := extractAll(t, single)
	require.Len(t, want, 2)
	assert.Equal(t, content, want["a.txt"])
	assert.Equal(t, content, want["b.txt"])

	tests := []struct {
		name string
		cuts []int
	}{
		{name: "cut in first payload", cuts: []int{60}},
		{name: "cut in header", cuts: []int{15}},
		{name: "cut in signature", cuts: []int{10}},
		{name: "many volumes", cuts: []int{7, 30, 31, 100, 250, len(data) - 3}},
		{name: "cut at end", cuts: []int{len(data)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openFS(t, splitVolumes("split.alz", data, tt.cuts...), "split.alz")
			assert.Len(t, a.Volumes(), len(tt.cuts)+1)
			assert.Equal(t, int64(len(data)), a.Size())
			assert.Equal(t, want, extractAll(t, a))
		})
	}
}

func extractAll(t *testing.T, a *Archive) map[string][]byte {
	t.Helper()

	got := make(map[string][]byte)
	for e, err := range a.Files() {
		require.NoError(t, err)

		data, err := readAll(t, e, "test")
		require.NoError(t, err)
		got[e.Name] = data
	}

	return got
}

func TestArchive_OpenEntry(t *testing.T) {
	data := newArchiveBuilder(t).
		entry(testEntry{name: []byte("a"), method: codec.Deflate, data: []byte("first")}).
		entry(testEntry{name: []byte("b"), method: codec.Store, data: []byte("second"), password: "pw"}).
		entry(testEntry{name: []byte("c"), method: codec.Deflate, data: bytes.Repeat([]byte("third"), 100)}).
		end().
		bytes()

	a := openFS(t, splitVolumes("o.alz", data, 40, 80), "o.alz")
	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	want := []string{"first", "second", string(bytes.Repeat([]byte("third"), 100))}

	// in reverse order and concurrently.
	var (
		wg  sync.WaitGroup
		got = make([]string, len(entries))
		mu  sync.Mutex
		errs []error
	)
	for i := len(entries) - 1; i >= 0; i-- {
		wg.Add(1)
		go func() {
			defer wg.Done()

			rc, err := a.OpenEntry(entries[i], []byte("pw"))
			if err == nil {
				var b []byte
				b, err = io.ReadAll(rc)
				got[i] = string(b)
				err = errors.Join(err, rc.Close())
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, want, got)

	// Entry.Open uses a fresh cursor too.
	b, err := readAll(t, entries[0], "")
	assert.NoError(t, err)
	assert.Equal(t, "first", string(b))
}

func TestArchive_MissingVolume(t *testing.T) {
	data := newArchiveBuilder(t).entry(testEntry{name: []byte("a"), data: []byte("hello")}).end().bytes()
	fsys := splitVolumes("m.alz", data, 20)

	a := openFS(t, fsys, "m.alz")
	delete(fsys, "m.a00")

	_, err := a.List()
	var ve *VolumeError
	assert.ErrorAs(t, err, &ve)
	assert.True(t, IsFatal(err))
}

func TestArchive_EmptyEntryChecksum(t *testing.T) {
	a := openBytes(t, newArchiveBuilder(t).
		entry(testEntry{name: []byte("empty"), method: codec.Store}).
		entry(testEntry{name: []byte("empty-bad-crc"), method: codec.Store, crc: ptr(uint32(1))}).
		end().
		bytes())

	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Data)

	data, err := readAll(t, entries[0], "")
	assert.NoError(t, err)
	assert.Empty(t, data)

	_, err = readAll(t, entries[1], "")
	var ce *ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, uint32(0), ce.Actual)
}

func TestArchive_EntriesConcurrentOpen(t *testing.T) {
	b := newArchiveBuilder(t)
	want := make(map[string]string)
	for i := range 50 {
		name := fmt.Sprintf("file-%02d.txt", i)
		data := strings.Repeat(name+"\n", 20+i)
		want[name] = data
		b.entry(testEntry{name: []byte(name), method: codec.Deflate, data: []byte(data)})
	}
	a := openBytes(t, b.end().bytes())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		got  = make(map[string]string)
		errs []error
	)
	for e, err := range a.Entries() {
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()

			data, err := readAll(t, e, "")

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			got[e.Name] = string(data)
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, want, got)
}

func TestFile_Open(t *testing.T) {
	a := openBytes(t, newArchiveBuilder(t).
		entry(testEntry{name: []byte("a"), method: codec.Deflate, data: []byte("hello, world")}).
		end().
		bytes())

	for f, err := range a.Files() {
		require.NoError(t, err)

		rc, err := f.Open(nil)
		require.NoError(t, err)
		head := make([]byte, 5)
		_, err = io.ReadFull(rc, head)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "hello", string(head))

		// the walk has moved past the start of the payload so a second Open reads from a fresh cursor.
		data, err := readAll(t, f, "")
		assert.NoError(t, err)
		assert.Equal(t, "hello, world", string(data))
	}
}
