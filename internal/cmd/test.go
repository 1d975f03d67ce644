package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/unalz/internal"
	"github.com/nguyengg/unalz/internal/extract"
)

type Test struct {
	Password string `long:"pwd" description:"password for encrypted entries; prompted on the terminal if needed and not given"`
	Quiet    bool   `short:"q" long:"quiet" description:"only print failures"`
	Args     struct {
		Archives []flags.Filename `positional-arg-name:"archive" description:"the archives to test; the first volume if split, local or s3://bucket/key" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Test) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	passwordFunc, password := passwordOrPrompt(c.Password)
	if passwordFunc != nil {
		// prompt once for all archives.
		passwordFunc = sync.OnceValues(passwordFunc)
	}

	success := 0
	n := len(c.Args.Archives)
	for i, file := range c.Args.Archives {
		name := string(file)
		ctx := internal.WithPrefixLogger(ctx, os.Stderr, internal.Prefix(i, n, name))
		logger := internal.Logger(ctx)

		a, err := openArchive(ctx, name)
		if err != nil {
			logger.Printf("open error: %v", err)
			continue
		}

		report, err := extract.Extract(ctx, a, func(opts *extract.Options) {
			opts.Test = true
			opts.Password = password
			opts.PasswordFunc = passwordFunc
			if !c.Quiet {
				opts.LogInterval = 5 * time.Second
			}
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Printf("interrupted; %d/%d archives OK", success, n)
				return err
			}

			logger.Printf("test error: %v", err)
			continue
		}

		if len(report.Failures) != 0 {
			logger.Printf("%d/%d entries OK", len(report.Successes), len(report.Successes)+len(report.Failures))
			continue
		}

		if !c.Quiet {
			logger.Printf("all %d entries OK", len(report.Successes))
		}
		success++
	}

	if n > 1 || c.Quiet {
		log.Printf("%d/%d archives OK", success, n)
	}
	if success != n {
		return fmt.Errorf("%d archives failed", n-success)
	}

	return nil
}
