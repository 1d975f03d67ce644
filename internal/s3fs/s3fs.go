// Package s3fs serves the volumes of an archive stored in S3 to volume.Discover.
package s3fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nguyengg/unalz/volume"
)

// DefaultBufferSize is the default value for FS.BufferSize.
const DefaultBufferSize = 1024 * 1024

// Client abstracts the S3 APIs that are needed to implement FS.
type Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// FS is a volume.FileSystem whose names are the keys of objects in one bucket.
type FS struct {
	Client              Client
	Bucket              string
	ExpectedBucketOwner *string

	// Ctx is used for every HeadObject and GetObject call. Defaults to context.Background.
	Ctx context.Context

	// BufferSize is the minimum number of bytes requested by each ranged GetObject so that the small sequential
	// reads of the archive parser do not each become a request. Defaults to DefaultBufferSize.
	BufferSize int
}

var _ volume.FileSystem = (*FS)(nil)

// New returns an FS for the given bucket.
func New(ctx context.Context, client Client, bucket string, optFns ...func(*FS)) *FS {
	f := &FS{Client: client, Bucket: bucket, Ctx: ctx, BufferSize: DefaultBufferSize}
	for _, fn := range optFns {
		fn(f)
	}

	return f
}

// ParseURI parses S3 URIs in format s3://bucket/key.
func ParseURI(text string) (bucket, key string, err error) {
	if !strings.HasPrefix(text, "s3://") {
		return "", "", fmt.Errorf(`"%s" does not start with s3://`, text)
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(text, "s3://"), "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf(`"%s" is missing bucket or key`, text)
	}

	return
}

func (f *FS) ctx() context.Context {
	if f.Ctx == nil {
		return context.Background()
	}

	return f.Ctx
}

// Stat returns the size and modification time of the object, wrapping fs.ErrNotExist if there is none.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	headObjectOutput, err := f.Client.HeadObject(f.ctx(), &s3.HeadObjectInput{
		Bucket:              aws.String(f.Bucket),
		Key:                 aws.String(name),
		ExpectedBucketOwner: f.ExpectedBucketOwner,
	})
	if err != nil {
		if isNotFound(err) {
			err = fs.ErrNotExist
		}

		return nil, &fs.PathError{Op: "stat", Path: "s3://" + f.Bucket + "/" + name, Err: err}
	}

	return &fileInfo{
		name:    path.Base(name),
		size:    aws.ToInt64(headObjectOutput.ContentLength),
		modTime: aws.ToTime(headObjectOutput.LastModified),
	}, nil
}

// Open returns a file that reads the object with ranged GetObject calls. The returned file also implements io.Seeker
// and io.ReaderAt.
func (f *FS) Open(name string) (fs.File, error) {
	fi, err := f.Stat(name)
	if err != nil {
		return nil, err
	}

	bufferSize := f.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &file{fsys: f, key: name, info: fi.(*fileInfo), bufferSize: bufferSize}, nil
}

func isNotFound(err error) bool {
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == 404
}

type fileInfo struct {
	name    string
	size    int64
	modTime time.Time
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() fs.FileMode  { return 0444 }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return false }
func (fi *fileInfo) Sys() any           { return nil }

// file buffers ahead of the current offset.
type file struct {
	fsys       *FS
	key        string
	info       *fileInfo
	off        int64
	buf        bytes.Buffer
	bufferSize int
	closed     bool
}

var (
	_ io.ReadSeekCloser = (*file)(nil)
	_ io.ReaderAt       = (*file)(nil)
)

func (r *file) Stat() (fs.FileInfo, error) {
	return r.info, nil
}

func (r *file) Read(p []byte) (n int, err error) {
	if r.closed {
		return 0, fs.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	if r.buf.Len() == 0 {
		if r.off >= r.info.size {
			return 0, io.EOF
		}

		if err = r.fill(r.off, r.off+int64(max(len(p), r.bufferSize))-1); err != nil {
			return 0, err
		}
	}

	n, _ = r.buf.Read(p)
	r.off += int64(n)
	return n, nil
}

// fill replaces the buffer with the bytes in the inclusive range [start, end].
func (r *file) fill(start, end int64) error {
	r.buf.Reset()

	body, err := r.get(start, end)
	if err != nil {
		return err
	}
	defer body.Close()

	_, err = r.buf.ReadFrom(body)
	return err
}

func (r *file) get(start, end int64) (io.ReadCloser, error) {
	getObjectOutput, err := r.fsys.Client.GetObject(r.fsys.ctx(), &s3.GetObjectInput{
		Bucket:              aws.String(r.fsys.Bucket),
		Key:                 aws.String(r.key),
		ExpectedBucketOwner: r.fsys.ExpectedBucketOwner,
		Range:               aws.String(fmt.Sprintf("bytes=%d-%d", start, min(r.info.size-1, end))),
	})
	if err != nil {
		return nil, fmt.Errorf(`get "s3://%s/%s" error: %w`, r.fsys.Bucket, r.key, err)
	}

	return getObjectOutput.Body, nil
}

func (r *file) ReadAt(p []byte, off int64) (n int, err error) {
	if r.closed {
		return 0, fs.ErrClosed
	}
	if off >= r.info.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	body, err := r.get(off, off+int64(len(p))-1)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err = io.ReadFull(body, p[:min(int64(len(p)), r.info.size-off)])
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return
}

// Seek keeps the buffered bytes when seeking forward within them.
func (r *file) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.off + offset
	case io.SeekEnd:
		abs = r.info.size + offset
	default:
		return r.off, fmt.Errorf("invalid whence %d", whence)
	}

	if abs < 0 {
		return r.off, &fs.PathError{Op: "seek", Path: r.key, Err: fs.ErrInvalid}
	}

	if delta := abs - r.off; delta >= 0 && delta <= int64(r.buf.Len()) {
		r.buf.Next(int(delta))
	} else {
		r.buf.Reset()
	}

	r.off = abs
	return r.off, nil
}

func (r *file) Close() error {
	r.closed = true
	r.buf = bytes.Buffer{}
	return nil
}
