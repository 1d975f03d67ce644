package extract

import (
	"bufio"
	"fmt"
	"io"

	"github.com/nguyengg/unalz/alz"
)

const listSeparator = "---- ------------ ------------ ------- ------------------------------------------------\n"

// List writes a table of the entries to w: attributes, sizes, method, modification time, and name, followed by the
// totals. Encrypted entries have a '*' after their name.
func List(w io.Writer, entries []*alz.Entry) error {
	bw := bufio.NewWriter(w)

	var uncompressed, compressed uint64
	_, _ = fmt.Fprint(bw, "Attr  Uncomp Size    Comp Size Method  Date & Time & File Name\n")
	_, _ = fmt.Fprint(bw, listSeparator)

	for _, e := range entries {
		encrypted := ""
		if e.IsEncrypted() {
			encrypted = "*"
		}

		_, _ = fmt.Fprintf(bw, "%s %12d %12d %-7s %s  %s%s\n",
			e.Attr, e.UncompressedSize(), e.CompressedSize(), e.Method(), e.Modified, e.Name, encrypted)

		uncompressed += e.UncompressedSize()
		compressed += e.CompressedSize()
	}

	plural := ""
	if len(entries) > 1 {
		plural = "s"
	}

	_, _ = fmt.Fprint(bw, listSeparator)
	_, _ = fmt.Fprintf(bw, "     %12d %12d         Total %d file%s\n", uncompressed, compressed, len(entries), plural)

	return bw.Flush()
}
