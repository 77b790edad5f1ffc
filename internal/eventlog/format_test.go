package eventlog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ent0n29/companion/internal/codec"
)

func TestFormatForPromptEmpty(t *testing.T) {
	assert.Equal(t, "No live chat yet.", FormatForPrompt(nil))
}

func TestFormatForPromptRedactsContact(t *testing.T) {
	ts := codec.At(time.Date(2026, 5, 10, 20, 0, 0, 0, time.UTC))
	out := FormatForPrompt([]Record{
		{Username: "ana", Content: "hi there", Timestamp: ts},
		{Username: "bo", Content: "mail me at bo@example.com", Timestamp: ts},
	})

	lines := strings.Split(out, "\n")
	assert.Equal(t, "2 live chat messages:", lines[0])
	assert.Contains(t, out, "ana: hi there")
	assert.NotContains(t, out, "bo@example.com")
	assert.Contains(t, out, "[REDACTED_EMAIL]")
}
