package internal

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/nguyengg/unalz/util"
)

// Prefix creates a consistent prefix for all archive-based commands to use.
//
// i and n are the zero-based ordinal and expected count.
func Prefix(i, n int, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return fmt.Sprintf(`[%d/%d] "%s" - `, i+1, n, util.TruncateRightWithSuffix(base, 30, "..."))
}

type loggerKey struct{}

// WithPrefixLogger creates a new logger writing to w using the given prefix, then attaches the logger to context.
//
// Pass io.Discard as w to silence the logger.
func WithPrefixLogger(ctx context.Context, w io.Writer, prefix string) context.Context {
	return context.WithValue(ctx, loggerKey{}, log.New(w, prefix, 0))
}

// Logger returns the logger attached to the given context, or log.Default if there is none.
func Logger(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*log.Logger); ok {
		return l
	}

	return log.Default()
}
