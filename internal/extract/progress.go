package extract

import (
	"io"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/unalz/internal"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// progressLogger receives every decompressed byte written by the driver.
type progressLogger interface {
	io.WriteCloser
}

// newProgressLogger picks the progress bar if opts asks for one, then the periodic logger, then nothing.
func newProgressLogger(opts *Options, logger *log.Logger, size uint64) progressLogger {
	switch {
	case opts.ProgressBar != nil:
		return &barLogger{w: opts.ProgressBar, size: size}
	case opts.LogInterval > 0:
		return &logLogger{
			logger: logger,
			rate:   &rate.Sometimes{Interval: opts.LogInterval},
			size:   size,
		}
	default:
		return noopLogger{io.Discard}
	}
}

type logLogger struct {
	logger        *log.Logger
	rate          *rate.Sometimes
	written, size uint64
}

func (l *logLogger) Write(p []byte) (n int, err error) {
	n = len(p)
	l.written += uint64(n)

	l.rate.Do(func() {
		l.logger.Printf("extracted %s / %s so far", humanize.IBytes(l.written), humanize.IBytes(l.size))
	})

	return n, nil
}

func (l *logLogger) Close() error {
	if l.written == l.size {
		l.logger.Printf("extracted %s in total", humanize.IBytes(l.written))
	} else {
		l.logger.Printf("extracted %s / %s in total", humanize.IBytes(l.written), humanize.IBytes(l.size))
	}

	return nil
}

type barLogger struct {
	w    io.Writer
	bar  *progressbar.ProgressBar
	size uint64
}

func (b *barLogger) Write(p []byte) (n int, err error) {
	if b.bar == nil {
		// create on first write so that an archive with nothing to extract renders nothing.
		b.bar = internal.DefaultBytes(b.w, int64(b.size), "extracting")
	}

	// ignore all errors from progress bar.
	_, _ = b.bar.Write(p)
	return len(p), nil
}

func (b *barLogger) Close() error {
	if b.bar != nil {
		return b.bar.Close()
	}

	return nil
}

type noopLogger struct {
	io.Writer
}

func (n noopLogger) Close() error {
	return nil
}

var (
	_ progressLogger = (*logLogger)(nil)
	_ progressLogger = (*barLogger)(nil)
	_ progressLogger = noopLogger{}
)
