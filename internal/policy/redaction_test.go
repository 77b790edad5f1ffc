package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIIMasksLinks(t *testing.T) {
	out, changed := RedactPII("join my room https://live.example.com/r/42?ref=x now")
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if out != "join my room [REDACTED_URL] now" {
		t.Fatalf("out = %q", out)
	}
}

func TestRedactPIILeavesPlainChat(t *testing.T) {
	in := "gg, that boss fight took 3 tries"
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v; want unchanged", in, out, changed)
	}
}
