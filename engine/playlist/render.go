package playlist

import (
	"bufio"
	"io"
)

// Render writes the header line followed by the metadata and URL line of
// every entry, in slice order. Lines are joined with "\n" and the output has
// no trailing newline.
func Render(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(Header)
	for _, e := range entries {
		bw.WriteByte('\n')
		bw.WriteString(e.Meta)
		bw.WriteByte('\n')
		bw.WriteString(e.URL)
	}
	return bw.Flush()
}
