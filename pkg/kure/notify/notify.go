// Package notify implements the Notifier port named in SPEC_FULL.md §6
// (out-of-scope-for-the-core collaborator, "notification delivery behind a
// Notify(event) port"): a single resolved-notification event fired on
// dismiss-deleted auto-resolution.
package notify

import "context"

// EventKind identifies what happened.
type EventKind string

// KindPodResolved is emitted when the agent reconciliation loop auto-resolves
// a PodFailure because the underlying pod disappeared (§4.2 dismiss-deleted).
const KindPodResolved EventKind = "pod_resolved"

// Event is the single notification shape this system emits. Kept minimal
// deliberately: the core's job is reporting the event exists, not rendering
// rich alert UX (that lived in the teacher's incident/escalation subsystem,
// out of scope here).
type Event struct {
	Kind      EventKind
	Namespace string
	PodName   string
	Reason    string
	Note      string
}

// Notifier delivers an Event to an external channel. Failures here are
// recovered locally per §7's "recover on optional paths" policy — a
// notification failure never fails the ingest request that triggered it.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}
