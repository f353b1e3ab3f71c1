package guard

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTrackerBlocksAfterLimit(t *testing.T) {
	c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := New(3, time.Minute)
	tr.now = c.now

	if tr.Fail("1.2.3.4") || tr.Fail("1.2.3.4") {
		t.Fatal("blocked before reaching the limit")
	}
	if !tr.Fail("1.2.3.4") {
		t.Fatal("expected block at the limit")
	}
	if !tr.Blocked("1.2.3.4") {
		t.Fatal("expected key to be blocked")
	}
	if tr.Blocked("5.6.7.8") {
		t.Fatal("unrelated key blocked")
	}

	c.t = c.t.Add(time.Minute + time.Second)
	if tr.Blocked("1.2.3.4") {
		t.Fatal("block should expire after the window")
	}
}

func TestTrackerSweepAndReset(t *testing.T) {
	c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := New(2, time.Minute)
	tr.now = c.now

	tr.Fail("a")
	tr.Fail("b")
	tr.Fail("b")
	tr.Reset("a")
	if tr.Len() != 1 {
		t.Fatalf("expected one tracked key, got %d", tr.Len())
	}

	if n := tr.Sweep(); n != 0 {
		t.Fatalf("swept live entries: %d", n)
	}
	c.t = c.t.Add(2 * time.Minute)
	if n := tr.Sweep(); n != 1 {
		t.Fatalf("expected one expired entry, got %d", n)
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty tracker, got %d", tr.Len())
	}
}

func TestTrackerRunStops(t *testing.T) {
	tr := New(1, time.Minute)
	go tr.Run(context.Background(), time.Millisecond)
	tr.Stop()
	tr.Stop()

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestTrackerRunHonoursContext(t *testing.T) {
	tr := New(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx, time.Millisecond)
	cancel()

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
