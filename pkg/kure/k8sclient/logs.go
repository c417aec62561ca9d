package k8sclient

import (
	"bufio"
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
)

// LogStreamer follows a container's logs and forwards lines to a channel,
// implementing the backend.LogStreamer port (§4.2's SSE log stream).
type LogStreamer struct {
	clientset *kubernetes.Clientset
}

// NewLogStreamer wraps a clientset for log streaming.
func NewLogStreamer(cs *kubernetes.Clientset) *LogStreamer {
	return &LogStreamer{clientset: cs}
}

// StreamLogs opens a following log stream for pod's first container and
// pushes each line onto lines until ctx is cancelled or the stream ends.
// Cancelling ctx aborts the underlying Kubernetes watch at its next read
// (§5's "SSE log streams end on client disconnect").
func (s *LogStreamer) StreamLogs(ctx context.Context, namespace, pod string, lines chan<- string) error {
	defer close(lines)

	req := s.clientset.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{Follow: true})
	stream, err := req.Stream(ctx)
	if err != nil {
		return fmt.Errorf("opening log stream for %s/%s: %w", namespace, pod, err)
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case lines <- scanner.Text():
		}
	}
	return scanner.Err()
}

// TailLines fetches the last n lines of a pod's logs without following,
// used by the agent's data collector (§4.3: "last 50 log lines tolerating
// forbidden/403").
func TailLines(ctx context.Context, cs *kubernetes.Clientset, namespace, pod string, n int64) (string, error) {
	opts := &corev1.PodLogOptions{TailLines: &n}
	data, err := cs.CoreV1().Pods(namespace).GetLogs(pod, opts).DoRaw(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
