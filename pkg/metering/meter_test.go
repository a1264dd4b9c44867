package metering

import (
	"errors"
	"testing"
	"time"
)

func TestRecord(t *testing.T) {
	s := NewStore()
	s.Record(KindChannel, 10, nil)
	s.Record(KindChannel, 10, nil)
	s.Record(KindChannel, 10, errors.New("boom"))
	s.Record(KindDirect, 5, nil)

	m, ok := s.Get(KindChannel, 10)
	if !ok {
		t.Fatal("expected meter for channel 10")
	}
	if m.Sent != 2 || m.Failed != 1 {
		t.Errorf("got sent=%d failed=%d, want 2/1", m.Sent, m.Failed)
	}
	if m.LastError != "boom" {
		t.Errorf("last error: got %q", m.LastError)
	}

	if _, ok := s.Get(KindDirect, 10); ok {
		t.Error("kinds must not share meters")
	}
}

func TestTotalsAndSnapshot(t *testing.T) {
	s := NewStore()
	s.Record(KindDirect, 3, nil)
	s.Record(KindChannel, 2, errors.New("x"))
	s.Record(KindChannel, 1, nil)

	sent, failed := s.Totals(KindChannel)
	if sent != 1 || failed != 1 {
		t.Errorf("channel totals: got %d/%d", sent, failed)
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 meters, got %d", len(snap))
	}
	if snap[0].Kind != KindChannel || snap[0].Target != 1 || snap[1].Target != 2 || snap[2].Kind != KindDirect {
		t.Errorf("unexpected order: %+v", snap)
	}

	snap[0].Sent = 99
	if m, _ := s.Get(KindChannel, 1); m.Sent != 1 {
		t.Error("snapshot must not alias store state")
	}
}

func TestUptime(t *testing.T) {
	s := NewStore()
	base := s.started
	s.now = func() time.Time { return base.Add(90 * time.Second) }
	if got := s.Uptime(); got != 90*time.Second {
		t.Errorf("uptime: got %v", got)
	}
}
