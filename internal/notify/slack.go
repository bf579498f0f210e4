// Package notify posts captured frames to Slack. Notification failures are
// logged and otherwise ignored.
package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slack-go/slack"

	"github.com/edgeops/snowedge/internal/logging"
)

const defaultMessagePrefix = "Edge Telemetry Upload"

// slackAPI is the subset of *slack.Client the notifier uses.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Config configures Slack notifications.
type Config struct {
	Enabled       bool
	BotToken      string
	Channel       string
	MessagePrefix string
}

// Notifier sends frame notifications to a Slack channel.
type Notifier struct {
	config Config
	api    slackAPI
	log    logging.Logger
}

func NewNotifier(config Config, log logging.Logger) *Notifier {
	if config.MessagePrefix == "" {
		config.MessagePrefix = defaultMessagePrefix
	}
	n := &Notifier{config: config, log: log}
	if config.Enabled {
		n.api = slack.New(config.BotToken)
	}
	return n
}

// SendImage posts a message to the configured channel and uploads the frame
// with the caption. A nil caption falls back to the message prefix alone.
func (n *Notifier) SendImage(ctx context.Context, imagePath string, caption *string) {
	if !n.config.Enabled || n.api == nil {
		return
	}

	text := n.config.MessagePrefix
	title := "Edge Capture"
	if caption != nil && *caption != "" {
		text = fmt.Sprintf("%s: %s", text, *caption)
		title = *caption
	}

	if _, _, err := n.api.PostMessageContext(ctx, n.config.Channel, slack.MsgOptionText(text, false)); err != nil {
		n.log.Warn(ctx, "slack message failed", "channel", n.config.Channel, "error", err)
		return
	}

	info, err := os.Stat(imagePath)
	if err != nil {
		n.log.Warn(ctx, "slack upload skipped, frame unreadable", "path", imagePath, "error", err)
		return
	}

	_, err = n.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:        n.config.Channel,
		File:           imagePath,
		FileSize:       int(info.Size()),
		Filename:       filepath.Base(imagePath),
		Title:          title,
		InitialComment: text,
	})
	if err != nil {
		n.log.Warn(ctx, "slack upload failed", "channel", n.config.Channel, "error", err)
	}
}
