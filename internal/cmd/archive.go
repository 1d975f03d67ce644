package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nguyengg/unalz/alz"
	"github.com/nguyengg/unalz/internal/config"
	"github.com/nguyengg/unalz/internal/s3fs"
	"golang.org/x/term"
)

// openArchive opens a local archive, or one stored in S3 if name is an s3:// URI.
//
// The other volumes of an S3 archive are looked for next to the first one, in the same bucket.
func openArchive(ctx context.Context, name string) (*alz.Archive, error) {
	if !strings.HasPrefix(name, "s3://") {
		return alz.Open(name)
	}

	bucket, key, err := s3fs.ParseURI(name)
	if err != nil {
		return nil, err
	}

	client, err := config.NewS3ClientForBucket(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("create S3 client error: %w", err)
	}

	fsys := s3fs.New(ctx, client, bucket, func(f *s3fs.FS) {
		f.ExpectedBucketOwner = config.ForBucket(bucket).ExpectedBucketOwner
	})

	return alz.Open(key, func(opts *alz.Options) {
		opts.FileSystem = fsys
	})
}

// passwordOrPrompt returns the password if one was given, or a function that prompts for it on the terminal.
func passwordOrPrompt(password string) (func() ([]byte, error), []byte) {
	if password != "" {
		return nil, []byte(password)
	}

	return promptPassword, nil
}

func promptPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal; use --pwd to give the password")
	}

	_, _ = fmt.Fprint(os.Stderr, "Enter password: ")
	password, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	return password, err
}

// isTerminal reports whether f is attached to a terminal, in which case progress bars are preferred over log lines.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
