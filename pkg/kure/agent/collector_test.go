package agent

import (
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestRecentEventsSortsNewestFirstAndTruncates(t *testing.T) {
	now := time.Now()
	events := make([]corev1.Event, 0, 7)
	for i := 0; i < 7; i++ {
		events = append(events, corev1.Event{
			Reason:        "Reason" + string(rune('A'+i)),
			LastTimestamp: metav1.NewTime(now.Add(time.Duration(i) * time.Minute)),
		})
	}

	got := recentEvents(events)
	if len(got) != lastEventsLimit {
		t.Fatalf("got %d events, want %d", len(got), lastEventsLimit)
	}
	if got[0].Reason != "ReasonG" {
		t.Errorf("first event = %q, want newest (ReasonG)", got[0].Reason)
	}
	if got[len(got)-1].Reason != "ReasonC" {
		t.Errorf("last event = %q, want ReasonC after truncation", got[len(got)-1].Reason)
	}
}

func TestRecentEventsEmpty(t *testing.T) {
	if got := recentEvents(nil); len(got) != 0 {
		t.Errorf("got %d events for nil input, want 0", len(got))
	}
}
