package agent

import (
	"testing"
	"time"
)

func TestDedupShouldReportWhenNeverSeen(t *testing.T) {
	d := NewDedup(DefaultDedupWindow)
	if !d.ShouldReport("default", "web-1", time.Now()) {
		t.Error("expected ShouldReport true for an untracked pod")
	}
}

func TestDedupSuppressesWithinWindow(t *testing.T) {
	d := NewDedup(DefaultDedupWindow)
	now := time.Now()
	d.MarkReported("default", "web-1", now)

	if d.ShouldReport("default", "web-1", now.Add(5*time.Minute)) {
		t.Error("expected report to be suppressed within the dedup window")
	}
}

func TestDedupAllowsAfterWindowElapses(t *testing.T) {
	d := NewDedup(DefaultDedupWindow)
	now := time.Now()
	d.MarkReported("default", "web-1", now)

	if !d.ShouldReport("default", "web-1", now.Add(11*time.Minute)) {
		t.Error("expected report to be allowed once the dedup window elapses")
	}
}

func TestDedupForgetClearsEntry(t *testing.T) {
	d := NewDedup(DefaultDedupWindow)
	now := time.Now()
	d.MarkReported("default", "web-1", now)
	d.Forget("default", "web-1")

	if !d.ShouldReport("default", "web-1", now) {
		t.Error("expected ShouldReport true after Forget")
	}
}

func TestDedupTrackedListsAllKeys(t *testing.T) {
	d := NewDedup(DefaultDedupWindow)
	now := time.Now()
	d.MarkReported("default", "web-1", now)
	d.MarkReported("prod", "api-2", now)

	tracked := d.Tracked()
	if len(tracked) != 2 {
		t.Fatalf("got %d tracked entries, want 2", len(tracked))
	}
}
