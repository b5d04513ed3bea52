package utils

import (
	"fmt"
	"strings"
)

// maxQuotedLength limits how much of invalid input is copied into error messages
const maxQuotedLength = 64

// QuoteInput makes user input safe to embed in single line error message. Whitespace control characters are
// written as escape sequences, other non-printable bytes as `\xNN` and long input is truncated.
func QuoteInput(s string) string {
	truncated := false
	if len(s) > maxQuotedLength {
		s = s[:maxQuotedLength]
		truncated = true
	}
	buf := strings.Builder{}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\t':
			buf.WriteString(`\t`)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\r':
			buf.WriteString(`\r`)
		case c < 0x20 || c == 0x7f:
			fmt.Fprintf(&buf, `\x%02X`, c)
		default:
			buf.WriteByte(c)
		}
	}
	if truncated {
		buf.WriteString("...")
	}
	return buf.String()
}
