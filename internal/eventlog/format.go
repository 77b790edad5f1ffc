package eventlog

import (
	"fmt"
	"strings"

	"github.com/ent0n29/companion/internal/policy"
)

const emptyFeedLine = "No live chat yet."

// FormatRecord renders one event as a prompt line: "[ts] user: content".
// Contact details in the content are masked.
func FormatRecord(r Record) string {
	content, _ := policy.RedactPII(r.Content)
	return fmt.Sprintf("[%s] %s: %s", r.Timestamp.String(), r.Username, content)
}

// FormatForPrompt renders a list of events for inclusion in an LLM prompt.
func FormatForPrompt(records []Record) string {
	if len(records) == 0 {
		return emptyFeedLine
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d live chat messages:\n", len(records))
	for _, r := range records {
		b.WriteByte('\n')
		b.WriteString(FormatRecord(r))
	}
	return b.String()
}
