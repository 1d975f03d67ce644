package internal

import (
	"iter"
	"path"
	"strings"
)

// RootDir is the top-level directory shared by every entry of an archive, with a trailing slash.
type RootDir string

// Join trims the root directory from the slash-separated name, then joins the result with base.
func (r RootDir) Join(base, name string) string {
	return path.Join(base, strings.TrimPrefix(name, string(r)))
}

// FindRootDir returns the common top-level directory of the given slash-separated names, each paired with whether it
// is a directory.
//
// Given these three names:
//
//	test/a.txt
//	test/path/b.txt
//	test/another/path/c.txt
//
// The common root directory of those files is `test/`. The returned value is empty if the given files have no common
// root directory.
func FindRootDir(names iter.Seq2[string, bool]) (rootDir RootDir) {
	fn := NewRootDirFinder()

	var ok bool
	for name, isDir := range names {
		if rootDir, ok = fn(name, isDir); !ok {
			return ""
		}
	}

	return
}

// NewRootDirFinder returns a function that can be passed the entry names one by one to compute the common root.
//
// It returns the current root dir and a boolean indicating whether there is a common root so far. As soon as the
// returned boolean value is false, the search can stop since there is no common root and subsequent calls will keep
// returning `"", false`. A directory entry named exactly like the root ("test" or "test/") does not break the root.
func NewRootDirFinder() func(name string, isDir bool) (rootDir RootDir, hasRoot bool) {
	noRoot, root := false, ""

	return func(name string, isDir bool) (RootDir, bool) {
		if noRoot {
			return "", false
		}

		top, _, found := strings.Cut(name, "/")
		if !found && !isDir {
			// this is a file at top level so there is no root for sure.
			noRoot = true
			return "", false
		}

		switch root {
		case top:
		case "":
			root = top
		default:
			noRoot = true
			return "", false
		}

		return RootDir(root + "/"), true
	}
}
