package agent

import "time"

// DefaultDedupWindow is how long a (namespace, pod) pair is suppressed after
// a successful report absent an override (§4.3: "do not re-report within
// 10 minutes").
const DefaultDedupWindow = 10 * time.Minute

// Dedup is the agent's in-memory report-suppression map. It is touched only
// from the agent's single loop goroutine (§5: "the agent's dedup map is
// single-threaded"), so it carries no lock.
type Dedup struct {
	window       time.Duration
	lastReported map[string]time.Time
}

// NewDedup returns an empty dedup tracker that suppresses re-reports within
// window (KURE_DEDUP_WINDOW_MINUTES).
func NewDedup(window time.Duration) *Dedup {
	return &Dedup{window: window, lastReported: map[string]time.Time{}}
}

func key(namespace, pod string) string { return namespace + "/" + pod }

// ShouldReport reports whether namespace/pod is due for a report at now —
// either never reported, or last reported outside the dedup window.
func (d *Dedup) ShouldReport(namespace, pod string, now time.Time) bool {
	last, ok := d.lastReported[key(namespace, pod)]
	return !ok || now.Sub(last) >= d.window
}

// MarkReported stamps namespace/pod as reported at now. Call only after a
// successful backend ingest — on failure, leave the map untouched so the
// next loop retries (§4.3).
func (d *Dedup) MarkReported(namespace, pod string, now time.Time) {
	d.lastReported[key(namespace, pod)] = now
}

// Forget removes namespace/pod from the map, called once its dismiss-deleted
// report has succeeded.
func (d *Dedup) Forget(namespace, pod string) {
	delete(d.lastReported, key(namespace, pod))
}

// Tracked returns every (namespace, pod) pair currently in the map, used by
// the reconciliation pass to detect pods that have disappeared from the
// cluster.
func (d *Dedup) Tracked() []string {
	out := make([]string, 0, len(d.lastReported))
	for k := range d.lastReported {
		out = append(out, k)
	}
	return out
}
