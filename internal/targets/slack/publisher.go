package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	slackapi "github.com/slack-go/slack"

	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/targets"
)

const canvasPrefix = "canvas:"

// Publisher is the slack publish target.
type Publisher struct {
	api      API
	channel  string
	resolver *ChannelResolver
	logger   *slog.Logger
}

// New creates a Publisher posting to channel, given as "#name" or an id.
func New(api API, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		api:      api,
		channel:  channel,
		resolver: NewChannelResolver(api),
		logger:   logger,
	}
}

func (p *Publisher) Name() string { return models.TargetSlack }

// MessageText renders the channel message for e.
func MessageText(e *models.Entry) string {
	var b strings.Builder
	b.WriteString("*" + e.Subject() + "*\n")
	if u := e.RemoteID(models.TargetNotion); u != "" {
		b.WriteString("Notion: <" + u + ">\n")
	}
	b.WriteString("\n")
	b.WriteString(Mrkdwn(e.Body))
	return b.String()
}

// Publish posts or updates a channel message, or a canvas when opts.AsCanvas
// is set. A previous id of the other kind counts as absent.
func (p *Publisher) Publish(ctx context.Context, e *models.Entry, previousID string, opts targets.Options) targets.Result {
	if opts.AsCanvas {
		if !strings.HasPrefix(previousID, canvasPrefix) {
			previousID = ""
		}
		return p.publishCanvas(ctx, e, strings.TrimPrefix(previousID, canvasPrefix), opts.DryRun)
	}
	if strings.HasPrefix(previousID, canvasPrefix) {
		previousID = ""
	}
	return p.publishMessage(ctx, e, previousID, opts.DryRun)
}

func (p *Publisher) publishMessage(ctx context.Context, e *models.Entry, previousID string, dryRun bool) targets.Result {
	text := MessageText(e)
	if dryRun {
		res := targets.Preview(p.Name(), e, previousID)
		res.Detail = fmt.Sprintf("%s (%d chars to %s)", res.Detail, len(text), p.channel)
		return res
	}

	if channelID, ts, ok := splitMessageID(previousID); ok {
		_, newTS, _, err := p.api.UpdateMessageContext(ctx, channelID, ts, slackapi.MsgOptionText(text, false))
		if err == nil {
			return targets.Result{Status: targets.StatusUpdated, RemoteID: channelID + ":" + newTS, Detail: "message updated"}
		}
		if !isAPIError(err, "message_not_found", "channel_not_found", "cant_update_message") {
			return targets.Failed(fmt.Errorf("slack: update message: %w", err))
		}
		p.logger.Warn("slack: previous message gone, posting a new one",
			slog.String("message", previousID), slog.String("error", err.Error()))
	}

	channelID, err := p.resolver.Resolve(ctx, p.channel)
	if err != nil {
		return targets.Failed(err)
	}
	ch, ts, err := p.api.PostMessageContext(ctx, channelID, slackapi.MsgOptionText(text, false))
	if err != nil {
		return targets.Failed(fmt.Errorf("slack: post message: %w", err))
	}
	return targets.Result{Status: targets.StatusCreated, RemoteID: ch + ":" + ts, Detail: "message posted"}
}

func (p *Publisher) publishCanvas(ctx context.Context, e *models.Entry, canvasID string, dryRun bool) targets.Result {
	doc := slackapi.DocumentContent{Type: "markdown", Markdown: e.Body}
	if dryRun {
		prev := ""
		if canvasID != "" {
			prev = canvasPrefix + canvasID
		}
		res := targets.Preview(p.Name(), e, prev)
		res.Detail = fmt.Sprintf("%s (canvas, %d bytes)", res.Detail, len(e.Body))
		return res
	}

	if canvasID != "" {
		err := p.api.EditCanvasContext(ctx, slackapi.EditCanvasParams{
			CanvasID: canvasID,
			Changes:  []slackapi.CanvasChange{{Operation: "replace", DocumentContent: doc}},
		})
		if err == nil {
			return targets.Result{Status: targets.StatusUpdated, RemoteID: canvasPrefix + canvasID, Detail: "canvas updated"}
		}
		if !isAPIError(err, "canvas_not_found", "not_found") {
			return targets.Failed(fmt.Errorf("slack: edit canvas: %w", err))
		}
		p.logger.Warn("slack: previous canvas gone, creating a new one", slog.String("canvas", canvasID))
	}

	channelID, err := p.resolver.Resolve(ctx, p.channel)
	if err != nil {
		return targets.Failed(err)
	}
	id, err := p.api.CreateChannelCanvasContext(ctx, channelID, doc)
	if err != nil {
		return targets.Failed(fmt.Errorf("slack: create canvas: %w", err))
	}
	return targets.Result{Status: targets.StatusCreated, RemoteID: canvasPrefix + id, Detail: "canvas created"}
}

// splitMessageID splits a "<channel>:<ts>" remote id.
func splitMessageID(id string) (channel, ts string, ok bool) {
	channel, ts, ok = strings.Cut(id, ":")
	if !ok || channel == "" || ts == "" {
		return "", "", false
	}
	return channel, ts, true
}
