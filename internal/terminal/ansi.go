package terminal

import (
	"regexp"
	"strings"
)

// Escape-sequence patterns stripped from structured command output. Raw
// bytes still reach the visual terminal widget untouched; sanitization only
// applies to the result returned to callers.
var (
	// OSC: ESC ] ... terminated by BEL or ST (ESC \).
	oscRe = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
	// CSI: ESC [ parameters, intermediates, final byte.
	csiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	// Remaining escapes: optional intermediate bytes then a final byte,
	// covering charset designators like ESC ( B.
	escRe = regexp.MustCompile(`\x1b[ -/]*[@-~]`)
)

// StripANSI removes terminal styling and control sequences, leaving plain
// text with newlines and tabs intact.
func StripANSI(s string) string {
	s = oscRe.ReplaceAllString(s, "")
	s = csiRe.ReplaceAllString(s, "")
	s = escRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
