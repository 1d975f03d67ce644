package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/unalz/internal"
	"github.com/nguyengg/unalz/internal/config"
	"github.com/nguyengg/unalz/internal/extract"
)

type Extract struct {
	Dir         string `short:"d" long:"dir" description:"extract into this directory instead of the current one"`
	Password    string `long:"pwd" description:"password for encrypted entries; prompted on the terminal if needed and not given"`
	Quiet       bool   `short:"q" long:"quiet" description:"do not print progress"`
	Pipe        bool   `short:"p" long:"pipe" description:"write the contents of the entries to stdout instead of to files; implies --quiet"`
	NoOverwrite bool   `long:"no-overwrite" description:"write to name-1.ext, name-2.ext, etc. instead of replacing existing files"`
	AutoDir     bool   `long:"auto-dir" description:"extract into a new directory named after the archive or its single top-level directory"`
	Args        struct {
		Archive flags.Filename `positional-arg-name:"archive" description:"the archive to extract; the first volume if split, local or s3://bucket/key" required:"yes"`
		Files   []string       `positional-arg-name:"file" description:"only extract the entries with these names"`
	} `positional-args:"yes"`
}

func (c *Extract) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	c.applyConfig(config.ForExtract())

	name := string(c.Args.Archive)
	logWriter := io.Writer(os.Stderr)
	if c.Quiet || c.Pipe {
		logWriter = io.Discard
	}
	ctx = internal.WithPrefixLogger(ctx, logWriter, internal.Prefix(0, 1, name))
	logger := internal.Logger(ctx)

	a, err := openArchive(ctx, name)
	if err != nil {
		return fmt.Errorf(`open "%s" error: %w`, name, err)
	}

	logger.Printf("opened %d volume(s), %s", len(a.Volumes()), humanize.IBytes(uint64(a.Size())))

	passwordFunc, password := passwordOrPrompt(c.Password)

	report, err := extract.Extract(ctx, a, func(opts *extract.Options) {
		if c.Dir != "" {
			opts.Dir = c.Dir
		}
		opts.AutoDir = c.AutoDir
		opts.Files = c.Args.Files
		opts.Password = password
		opts.PasswordFunc = passwordFunc
		opts.NoOverwrite = c.NoOverwrite

		switch {
		case c.Pipe:
			opts.Pipe = os.Stdout
		case c.Quiet:
		case isTerminal(os.Stderr):
			opts.ProgressBar = os.Stderr
		default:
			opts.LogInterval = 5 * time.Second
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Printf("interrupted")
		}

		return fmt.Errorf(`extract "%s" error: %w`, name, err)
	}

	for _, f := range report.Unmatched {
		logger.Printf(`no entry named "%s"`, f)
	}

	n := len(report.Successes) + len(report.Failures)
	logger.Printf(`successfully extracted %d/%d entries to "%s"`, len(report.Successes), n, report.Dir)

	if len(report.Failures) != 0 || len(report.Unmatched) != 0 {
		return fmt.Errorf(`extract "%s" error: %d failed, %d not found`, name, len(report.Failures), len(report.Unmatched))
	}

	return nil
}

// applyConfig fills in the settings that were not given on the command line.
func (c *Extract) applyConfig(cfg config.ExtractConfig) {
	if c.Dir == "" {
		c.Dir = cfg.Dir
	}

	c.Quiet = c.Quiet || cfg.Quiet
	c.NoOverwrite = c.NoOverwrite || cfg.NoOverwrite
	c.AutoDir = c.AutoDir || cfg.AutoDir
}
