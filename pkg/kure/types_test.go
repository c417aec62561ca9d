package kure

import "testing"

func TestBaseNameMatches(t *testing.T) {
	tests := []struct {
		name     string
		excluded string
		title    string
		want     bool
	}{
		{"exact match", "Writable root filesystem", "Writable root filesystem", true},
		{"suffixed instance", "Writable root filesystem", "Writable root filesystem: nginx", true},
		{"unrelated title", "Writable root filesystem", "Privileged container", false},
		{"prefix without separator", "Writable root filesystem", "Writable root filesystemxyz", false},
		{"empty excluded never matches", "", "Writable root filesystem", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BaseNameMatches(tt.excluded, tt.title); got != tt.want {
				t.Errorf("BaseNameMatches(%q, %q) = %v, want %v", tt.excluded, tt.title, got, tt.want)
			}
		})
	}
}

func TestCanTransitionPodStatus(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{PodStatusNew, PodStatusInvestigating, true},
		{PodStatusNew, PodStatusResolved, true},
		{PodStatusNew, PodStatusIgnored, true},
		{PodStatusInvestigating, PodStatusResolved, true},
		{PodStatusInvestigating, PodStatusIgnored, true},
		{PodStatusInvestigating, PodStatusNew, false},
		{PodStatusResolved, PodStatusNew, false},
		{PodStatusResolved, PodStatusInvestigating, false},
		{PodStatusIgnored, PodStatusNew, true},
		{PodStatusIgnored, PodStatusInvestigating, false},
		{PodStatusNew, PodStatusNew, false},
	}

	for _, tt := range tests {
		if got := CanTransitionPodStatus(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionPodStatus(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsActivePodStatus(t *testing.T) {
	if !IsActivePodStatus(PodStatusNew) || !IsActivePodStatus(PodStatusInvestigating) {
		t.Error("new and investigating must be active")
	}
	if IsActivePodStatus(PodStatusResolved) || IsActivePodStatus(PodStatusIgnored) {
		t.Error("resolved and ignored must not be active")
	}
}

func TestValidateRetentionMinutes(t *testing.T) {
	if err := ValidateRetentionMinutes(0); err != nil {
		t.Errorf("0 should be valid (disabled): %v", err)
	}
	if err := ValidateRetentionMinutes(MaxRetentionMinutes); err != nil {
		t.Errorf("%d should be valid: %v", MaxRetentionMinutes, err)
	}
	if err := ValidateRetentionMinutes(MaxRetentionMinutes + 1); err == nil {
		t.Errorf("%d should be invalid", MaxRetentionMinutes+1)
	}
	if err := ValidateRetentionMinutes(-1); err == nil {
		t.Error("negative should be invalid")
	}
}

func TestClusterMetricsHistoryRing(t *testing.T) {
	m := NewClusterMetrics()
	for i := 0; i < HistoryRingSize+5; i++ {
		m.RecordPodPoint("prod", "web", PodMetricPoint{CPUMillis: float64(i)})
	}

	history := m.PodHistory("prod", "web")
	if len(history) != HistoryRingSize {
		t.Fatalf("history length = %d, want %d", len(history), HistoryRingSize)
	}
	if history[0].CPUMillis != 5 {
		t.Errorf("oldest retained point = %v, want CPUMillis=5 (oldest 5 evicted)", history[0])
	}

	m.SweepStale(map[string]struct{}{})
	if len(m.PodHistory("prod", "web")) != 0 {
		t.Error("expected history swept after pod left active set")
	}
}
