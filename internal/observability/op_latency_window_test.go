package observability

import (
	"testing"
	"time"
)

func TestOpLatencyWindowSnapshot(t *testing.T) {
	w := newOpLatencyWindow(8)
	w.Observe("session.append", 5)
	w.Observe("session.append", 10)
	w.Observe("session.append", 20)
	w.Observe("", 1)
	w.Observe("session.load", -1)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Ops) != 1 {
		t.Fatalf("len(Ops) = %d, want 1", len(snap.Ops))
	}
	s := snap.Ops[0]
	if s.Op != "session.append" {
		t.Fatalf("Op = %q, want %q", s.Op, "session.append")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 20 {
		t.Fatalf("LastMS = %.2f, want 20", s.LastMS)
	}
	if s.P50MS != 10 {
		t.Fatalf("P50MS = %.2f, want 10", s.P50MS)
	}
	if s.TargetP95MS != 25 {
		t.Fatalf("TargetP95MS = %.2f, want 25", s.TargetP95MS)
	}
}

func TestOpLatencyWindowWraps(t *testing.T) {
	w := newOpLatencyWindow(2)
	w.Observe("eventlog.recent", 1)
	w.Observe("eventlog.recent", 2)
	w.Observe("eventlog.recent", 30)

	s := w.Snapshot().Ops[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 16 {
		t.Fatalf("AvgMS = %.2f, want 16", s.AvgMS)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCacheLookup(true)
	m.ObserveWrite("session", "save", nil)
	m.ObserveOp("session.load", time.Millisecond)
	if got := m.SnapshotOps(); len(got.Ops) != 0 {
		t.Fatalf("nil metrics snapshot = %+v, want empty", got)
	}
}
