package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// SlackNotifier posts resolved-pod notifications to a single Slack channel,
// adapted from the teacher's pkg/slack.Notifier (there: multi-purpose alert
// poster with ack/escalate buttons and thread replies; here: trimmed to the
// one event this system emits).
type SlackNotifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackNotifier builds a SlackNotifier. If botToken is empty the notifier
// is a no-op (every call logs and returns nil), mirroring the teacher's
// IsEnabled() gating.
func NewSlackNotifier(botToken, channel string, logger *slog.Logger) *SlackNotifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackNotifier{client: client, channel: channel, logger: logger}
}

func (n *SlackNotifier) enabled() bool {
	return n.client != nil && n.channel != ""
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, ev Event) error {
	if !n.enabled() {
		n.logger.Debug("slack notifier disabled, skipping notification",
			"kind", ev.Kind, "namespace", ev.Namespace, "pod", ev.PodName)
		return nil
	}

	text := fmt.Sprintf(":white_check_mark: Pod resolved: %s/%s (%s)", ev.Namespace, ev.PodName, ev.Reason)
	block := goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil,
	)

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(block),
		goslack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("posting resolved notification to slack: %w", err)
	}
	return nil
}
