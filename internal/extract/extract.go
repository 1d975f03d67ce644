// Package extract writes the entries of an ALZ archive to a directory or a pipe, or only verifies them.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/nguyengg/unalz/alz"
	"github.com/nguyengg/unalz/internal"
	"github.com/nguyengg/unalz/util"
	"github.com/valyala/bytebufferpool"
)

const (
	defaultBufferSize = 32 * 1024

	// maxLinkTarget bounds the payload of a symbolic link entry.
	maxLinkTarget = 4096
)

// Options customises Extract.
type Options struct {
	// Dir is the directory to extract into, created if it does not exist. Defaults to the working directory.
	Dir string

	// AutoDir extracts into a new directory inside Dir instead of Dir itself.
	//
	// If every entry shares the same top-level directory, that directory is created (with a numeric suffix if it
	// already exists) and the entries are unwrapped into it. Otherwise, the new directory is named after the archive.
	AutoDir bool

	// Files restricts extraction to the entries with these names. Backslashes and forward slashes are
	// interchangeable. Empty means every entry.
	Files []string

	// Password is used for encrypted entries.
	Password []byte
	// PasswordFunc is called at most once, on the first encrypted entry, if Password is nil.
	PasswordFunc func() ([]byte, error)

	// Pipe, if given, receives the contents of every file entry in order; nothing is written to Dir.
	Pipe io.Writer

	// Test decodes and verifies every entry without writing anything.
	Test bool

	// NoOverwrite writes to "name-1.ext", "name-2.ext", etc. instead of replacing an existing file.
	NoOverwrite bool

	// ProgressBar, if given, renders a progress bar of the decompressed bytes.
	ProgressBar io.Writer
	// LogInterval, if positive and there is no ProgressBar, logs the number of decompressed bytes periodically.
	LogInterval time.Duration
}

// Success is an entry that was extracted or verified.
type Success struct {
	// Name is the entry name as stored in the archive.
	Name string
	// Path is the file or directory that was created, empty in pipe and test modes.
	Path string
	// Size is the number of decompressed bytes.
	Size uint64
}

// Failure is an entry that could not be extracted; the remaining entries were still processed.
type Failure struct {
	Name string
	Err  error
}

// Report is the outcome of Extract.
type Report struct {
	// Dir is the directory the entries were extracted into, empty in pipe and test modes.
	Dir       string
	Successes []Success
	Failures  []Failure
	// Unmatched lists the Options.Files that matched no entry.
	Unmatched []string
}

// Err returns the failures joined with errors.Join, nil if there are none.
func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}

	return errors.Join(errs...)
}

// Extract extracts the entries of the archive.
//
// The archive is walked twice: once to select the entries and compute totals, once more to stream them. An entry that
// fails (unsafe name, wrong password, bad data) is recorded as a Failure and the next one is processed. A fatal archive
// error (see alz.IsFatal) stops extraction and is returned along with the partial Report. ctx is checked between
// entries.
func Extract(ctx context.Context, a *alz.Archive, optFns ...func(*Options)) (*Report, error) {
	opts := &Options{Dir: "."}
	for _, fn := range optFns {
		fn(opts)
	}

	entries, err := a.List()
	if err != nil {
		return nil, err
	}

	x := &extractor{
		opts:   opts,
		report: &Report{},
		buf:    make([]byte, defaultBufferSize),
	}

	selected, total := x.selectEntries(entries)
	if err = x.createOutputDir(a, entries, selected); err != nil {
		return x.report, err
	}

	progress := newProgressLogger(opts, internal.Logger(ctx), total)
	defer progress.Close()

	for f, err := range a.Files() {
		if err != nil {
			return x.report, err
		}

		if !selected[f.Offset] {
			continue
		}

		if err = ctx.Err(); err != nil {
			return x.report, err
		}

		p, size, err := x.extractEntry(f, progress)
		switch {
		case err == nil:
			x.report.Successes = append(x.report.Successes, Success{Name: f.Name, Path: p, Size: size})
		case alz.IsFatal(err):
			return x.report, err
		default:
			x.report.Failures = append(x.report.Failures, Failure{Name: f.Name, Err: err})
			internal.Logger(ctx).Printf(`extract "%s" error: %v`, f.Name, err)
		}
	}

	return x.report, nil
}

type extractor struct {
	opts   *Options
	report *Report
	buf    []byte

	rootDir internal.RootDir
	asked   bool
}

// selectEntries returns the offsets of the entries to extract and their total uncompressed size.
func (x *extractor) selectEntries(entries []*alz.Entry) (map[int64]bool, uint64) {
	selected := make(map[int64]bool, len(entries))

	var total uint64
	add := func(e *alz.Entry) {
		if !selected[e.Offset] {
			selected[e.Offset] = true
			total += e.UncompressedSize()
		}
	}

	if len(x.opts.Files) == 0 {
		for _, e := range entries {
			add(e)
		}
		return selected, total
	}

	for _, f := range x.opts.Files {
		found := false
		for _, e := range entries {
			if matchName(e.Name, f) {
				add(e)
				found = true
			}
		}

		if !found {
			x.report.Unmatched = append(x.report.Unmatched, f)
		}
	}

	return selected, total
}

func matchName(name, pattern string) bool {
	normalise := func(s string) string {
		return strings.TrimSuffix(path.Clean(strings.ReplaceAll(s, "\\", "/")), "/")
	}

	return normalise(name) == normalise(pattern)
}

// createOutputDir sets Report.Dir, creating the directories as needed.
func (x *extractor) createOutputDir(a *alz.Archive, entries []*alz.Entry, selected map[int64]bool) error {
	if x.opts.Test || x.opts.Pipe != nil {
		return nil
	}

	if err := os.MkdirAll(x.opts.Dir, 0755); err != nil {
		return fmt.Errorf(`create output directory "%s" error: %w`, x.opts.Dir, err)
	}

	if !x.opts.AutoDir {
		x.report.Dir = x.opts.Dir
		return nil
	}

	rootDir := internal.FindRootDir(func(yield func(string, bool) bool) {
		for _, e := range entries {
			if !selected[e.Offset] {
				continue
			}

			// unsafe names are never extracted so they do not count.
			name, err := util.CleanArchivePath(e.Name)
			if err != nil {
				continue
			}

			if !yield(name, e.IsDir()) {
				return
			}
		}
	})

	var stem string
	if rootDir != "" {
		stem = strings.TrimSuffix(string(rootDir), "/")
		x.rootDir = rootDir
	} else {
		stem, _ = util.StemAndExt(a.Name)
	}

	dir, err := util.MkExclDir(x.opts.Dir, stem, 0755)
	if err != nil {
		return fmt.Errorf(`create output directory "%s" error: %w`, filepath.Join(x.opts.Dir, stem), err)
	}

	x.report.Dir = dir
	return nil
}

// target returns the path on disk for a cleaned entry name.
func (x *extractor) target(name string) string {
	if name+"/" == string(x.rootDir) {
		return x.report.Dir
	}

	return filepath.FromSlash(x.rootDir.Join(filepath.ToSlash(x.report.Dir), name))
}

// extractEntry returns the path that was written and the number of decompressed bytes.
func (x *extractor) extractEntry(f *alz.File, progress io.Writer) (string, uint64, error) {
	e := f.Entry

	name, err := util.CleanArchivePath(e.Name)
	if err != nil {
		return "", 0, fmt.Errorf(`invalid name "%s": %w`, e.Name, err)
	}

	if e.IsDir() {
		if x.opts.Test || x.opts.Pipe != nil {
			return "", 0, nil
		}

		p := x.target(name)
		if err = os.MkdirAll(p, 0755); err != nil {
			return "", 0, fmt.Errorf(`create directory "%s" error: %w`, p, err)
		}

		return p, 0, nil
	}

	rc, err := x.open(f)
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	switch {
	case x.opts.Test:
		n, err := io.CopyBuffer(progress, rc, x.buf)
		return "", uint64(n), err

	case x.opts.Pipe != nil:
		n, err := io.CopyBuffer(io.MultiWriter(x.opts.Pipe, progress), rc, x.buf)
		return "", uint64(n), err

	case e.IsSymlink():
		return x.writeSymlink(e, name, rc, progress)

	default:
		return x.writeFile(e, name, rc, progress)
	}
}

func (x *extractor) open(f *alz.File) (io.ReadCloser, error) {
	if !f.IsEncrypted() {
		return f.Open(nil)
	}

	if x.opts.Password == nil && x.opts.PasswordFunc != nil && !x.asked {
		x.asked = true

		password, err := x.opts.PasswordFunc()
		if err != nil {
			return nil, fmt.Errorf("read password error: %w", err)
		}

		x.opts.Password = password
	}

	return f.Open(x.opts.Password)
}

// writeFile writes the entry's contents to a file, removing the file if the contents are not fully and correctly
// decoded.
func (x *extractor) writeFile(e *alz.Entry, name string, src io.Reader, progress io.Writer) (string, uint64, error) {
	p := x.target(name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", 0, fmt.Errorf(`create path to file "%s" error: %w`, p, err)
	}

	var (
		f   *os.File
		err error
	)
	if x.opts.NoOverwrite {
		stem, ext := util.StemAndExt(filepath.Base(p))
		f, err = util.OpenExclFile(filepath.Dir(p), stem, ext, 0644)
	} else {
		// a read-only file from an earlier extraction cannot be truncated in place.
		if err = os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", 0, fmt.Errorf(`remove existing file "%s" error: %w`, p, err)
		}

		f, err = os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	}
	if err != nil {
		return "", 0, fmt.Errorf(`create file "%s" error: %w`, p, err)
	}

	p = f.Name()

	n, err := io.CopyBuffer(io.MultiWriter(f, progress), src, x.buf)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf(`close file "%s" error: %w`, p, cerr)
	}
	if err != nil {
		_ = os.Remove(p)
		return "", uint64(n), err
	}

	return p, uint64(n), setAttributes(e, p)
}

// writeSymlink creates a symbolic link whose target is the entry's contents.
//
// Absolute targets and targets with ".." components are rejected.
func (x *extractor) writeSymlink(e *alz.Entry, name string, src io.Reader, progress io.Writer) (string, uint64, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	if _, err := bb.ReadFrom(io.LimitReader(src, maxLinkTarget+1)); err != nil {
		return "", 0, err
	}

	b := bb.B
	if len(b) > maxLinkTarget {
		return "", 0, fmt.Errorf(`symlink "%s" target too long`, e.Name)
	}
	_, _ = progress.Write(b)

	target, err := util.CleanArchivePath(string(b))
	if err != nil {
		return "", 0, fmt.Errorf(`symlink "%s" to "%s" error: %w`, e.Name, b, err)
	}

	p := x.target(name)
	if err = os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", 0, fmt.Errorf(`create path to symlink "%s" error: %w`, p, err)
	}

	if !x.opts.NoOverwrite {
		_ = os.Remove(p)
	}

	if err = os.Symlink(filepath.FromSlash(target), p); err != nil {
		return "", 0, fmt.Errorf(`create symlink "%s" error: %w`, p, err)
	}

	return p, uint64(len(b)), nil
}

// setAttributes applies the modification time and the read-only attribute.
func setAttributes(e *alz.Entry, p string) error {
	if e.Modified.Valid() {
		if err := os.Chtimes(p, time.Time{}, e.Modified.Time()); err != nil {
			return fmt.Errorf(`change mod time of "%s" error: %w`, p, err)
		}
	}

	if e.Attr&alz.AttrReadOnly != 0 {
		if err := os.Chmod(p, 0444); err != nil {
			return fmt.Errorf(`change mode of "%s" error: %w`, p, err)
		}
	}

	return nil
}
