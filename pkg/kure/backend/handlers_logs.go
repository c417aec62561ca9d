package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kure-project/kure-monitor/internal/httpserver"
	"github.com/kure-project/kure-monitor/pkg/kure"
)

// heartbeatInterval matches §4.2's "heartbeat comment every 500 ms idle
// period" for the SSE log stream.
const heartbeatInterval = 500 * time.Millisecond

// HandleStreamLogs implements GET /api/pods/{ns}/{pod}/logs/stream. It opens
// a following Kubernetes log stream on a dedicated goroutine and forwards
// each line as an SSE data frame; client disconnect cancels the stream's
// context, which signals the underlying worker to stop (§4.2, §5).
func (b *Backend) HandleStreamLogs(w http.ResponseWriter, r *http.Request) {
	if b.Logs == nil {
		httpserver.RespondDomainError(w, r, b.Logger, kure.NewError(kure.KindUpstream, "log streaming is not configured"))
		return
	}

	ns := chi.URLParam(r, "ns")
	pod := chi.URLParam(r, "pod")

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpserver.RespondDomainError(w, r, b.Logger, kure.NewError(kure.KindInternal, "streaming unsupported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	lines := make(chan string, 256)
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Logs.StreamLogs(ctx, ns, pod, lines)
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case err := <-errCh:
			if err != nil {
				b.Logger.Warn("log stream ended with error", "namespace", ns, "pod", pod, "error", err)
			}
			return
		case line, open := <-lines:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", line)
			flusher.Flush()
			ticker.Reset(heartbeatInterval)
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
