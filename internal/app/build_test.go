package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/companion/internal/config"
	"github.com/ent0n29/companion/internal/eventlog"
	"github.com/ent0n29/companion/internal/session"
)

func TestBuildWiresSharedStores(t *testing.T) {
	root := t.TempDir()
	cfg := config.Config{
		MetricsNamespace:   fmt.Sprintf("test_app_%d", time.Now().UnixNano()),
		ContextDir:         filepath.Join(root, "context"),
		ContextMaxMessages: 5,
		ContextCacheTTL:    time.Minute,
		ContextCacheSize:   10,
		MonoRoundDuration:  time.Minute,
		EventLogDir:        filepath.Join(root, "events"),
		EventRetentionDays: 7,
	}

	res, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.MemoryMode != "in-memory" {
		t.Fatalf("MemoryMode = %q, want in-memory", res.MemoryMode)
	}
	if res.Sessions.MaxMessages() != 5 {
		t.Fatalf("MaxMessages() = %d, want 5", res.Sessions.MaxMessages())
	}

	if err := res.Sessions.Append("s1", session.Message{Role: session.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := res.Events.AddRaw(eventlog.Record{Content: "hello"}); err != nil {
		t.Fatalf("AddRaw() error = %v", err)
	}

	out, err := res.Janitor.RunOnce()
	if err != nil {
		t.Fatalf("Janitor.RunOnce() error = %v", err)
	}
	if out.Events.RawKept != 1 {
		t.Fatalf("RawKept = %d, want 1", out.Events.RawKept)
	}
}

func TestNewLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "text")
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "k=v") {
		t.Fatalf("text output = %q, want key=value form", out)
	}
}
