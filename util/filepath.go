package util

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// StemAndExt is a variant of filepath.Ext that allows extended extension to be detected while also returning the stem.
//
// For example, `filepath.Ext("photos.tar.alz")` would return ".alz", but `StemAndExt("photos.tar.alz")` would return
// ".tar.alz" for the extension, "photos" for the stem. This is useful when passed to MkExclDir or OpenExclFile:
// "photos-1" is more natural than "photos.tar-1".
//
// StemAndExt will only accept file extensions of 5 characters or less, so if there is no `.` in the last 6 characters,
// the returned ext will be empty string unlike filepath.Ext which will keep searching until the last path separator or
// `.` is found.
func StemAndExt(path string) (stem, ext string) {
	n := len(path) - 1
	for i, j := n, max(0, n-6); i >= j; i-- {
		switch path[i] {
		case '\\', '/':
			stem = path[i+1:]
			return
		case '.':
			ext = path[i:] + ext
			path = path[:i]
			n = len(path)
			i, j = n, max(0, n-6)
			continue
		}
	}

	stem = filepath.Base(path)
	return
}

// ErrUnsafePath is returned by CleanArchivePath for names that would escape the output directory.
var ErrUnsafePath = errors.New("unsafe path")

// CleanArchivePath turns a file name stored in an archive into a relative slash-separated path.
//
// Backslashes are treated as separators. Absolute names, names with a drive letter, and names with a ".." component
// are rejected with ErrUnsafePath.
func CleanArchivePath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")

	if strings.HasPrefix(name, "/") || (len(name) >= 2 && name[1] == ':') {
		return "", ErrUnsafePath
	}

	for _, p := range strings.Split(name, "/") {
		if p == ".." {
			return "", ErrUnsafePath
		}
	}

	switch name = path.Clean(name); name {
	case ".", "":
		return "", ErrUnsafePath
	}

	return name, nil
}
