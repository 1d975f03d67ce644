package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/unalz/internal"
	"github.com/nguyengg/unalz/internal/extract"
)

type List struct {
	Args struct {
		Archives []flags.Filename `positional-arg-name:"archive" description:"the archives to list; the first volume if split, local or s3://bucket/key" required:"yes"`
	} `positional-args:"yes"`

	// out is where listings are written, os.Stdout by default.
	out io.Writer
}

func (c *List) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	if c.out == nil {
		c.out = os.Stdout
	}

	success := 0
	n := len(c.Args.Archives)
	for i, file := range c.Args.Archives {
		name := string(file)
		ctx := internal.WithPrefixLogger(context.Background(), os.Stderr, internal.Prefix(i, n, name))

		if err := c.list(ctx, name, n > 1); err != nil {
			internal.Logger(ctx).Printf("list error: %v", err)
			continue
		}

		success++
	}

	if n > 1 {
		log.Printf("successfully listed %d/%d archives", success, n)
	}
	if success != n {
		return fmt.Errorf("%d archives could not be listed", n-success)
	}

	return nil
}

func (c *List) list(ctx context.Context, name string, showName bool) error {
	a, err := openArchive(ctx, name)
	if err != nil {
		return err
	}

	entries, err := a.List()
	if err != nil {
		return err
	}

	if showName {
		if _, err = fmt.Fprintf(c.out, "\n%s:\n", name); err != nil {
			return err
		}
	}

	return extract.List(c.out, entries)
}
