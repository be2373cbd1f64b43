// SPDX-License-Identifier: MPL-2.0

package metadata

import (
	"io"
	"strings"
)

// Record is an ordered sequence of header lines plus an optional free-text
// body, assembled fully in memory before being written anywhere. A record is
// never mutated once written.
type Record struct {
	headers []Header
	body    string
	hasBody bool
}

// Header is one rendered header line of a Record.
type Header struct {
	Name  string
	Value string
}

// Add appends one header. Multi-line values are folded on output, not here.
func (r *Record) Add(name, value string) {
	r.headers = append(r.headers, Header{Name: name, Value: value})
}

// SetBody attaches the long-description body. An empty body is still
// written (two separator newlines followed by nothing) to match the
// historical output format.
func (r *Record) SetBody(body string) {
	r.body = body
	r.hasBody = true
}

// Headers returns the headers in insertion order.
func (r *Record) Headers() []Header {
	return r.headers
}

// WriteTo renders the record. Header values containing newlines are folded:
// the first line follows the header name, continuation lines are indented
// by two spaces. The body, when present, is separated from the headers by
// two newlines.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for _, h := range r.headers {
		writeFolded(&b, h.Name, h.Value)
	}
	if r.hasBody {
		b.WriteString("\n\n")
		b.WriteString(r.body)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Bytes renders the record into memory.
func (r *Record) Bytes() []byte {
	var b strings.Builder
	_, _ = r.WriteTo(&b)
	return []byte(b.String())
}

func writeFolded(b *strings.Builder, name, value string) {
	lines := splitLines(value)
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(lines[0])
	b.WriteString("\n")
	for _, line := range lines[1:] {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// splitLines splits on newlines without producing a trailing empty element,
// and yields a single empty line for an empty value.
func splitLines(value string) []string {
	if value == "" {
		return []string{""}
	}
	value = strings.TrimSuffix(value, "\n")
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
