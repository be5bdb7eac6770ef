// Package slack publishes entries to a Slack channel as a message or a canvas.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	slackapi "github.com/slack-go/slack"
)

// API is the subset of the Slack Web API the publisher uses. *slackapi.Client
// satisfies it.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error)
	GetConversationsContext(ctx context.Context, params *slackapi.GetConversationsParameters) ([]slackapi.Channel, string, error)
	CreateChannelCanvasContext(ctx context.Context, channel string, documentContent slackapi.DocumentContent) (string, error)
	EditCanvasContext(ctx context.Context, params slackapi.EditCanvasParams) error
}

// NewAPI creates a Web API client for a bot token. apiURL overrides the API
// endpoint when non-empty.
func NewAPI(token, apiURL string) API {
	var opts []slackapi.Option
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slackapi.OptionAPIURL(apiURL))
	}
	return slackapi.New(token, opts...)
}

// ErrChannelNotFound is returned when a channel name matches no conversation.
var ErrChannelNotFound = errors.New("slack: channel not found")

const channelCacheTTL = 10 * time.Minute

// ChannelResolver maps "#name" channels to conversation ids and memoises the
// answer.
type ChannelResolver struct {
	api   API
	cache *cache.Cache
}

// NewChannelResolver creates a resolver backed by api.
func NewChannelResolver(api API) *ChannelResolver {
	return &ChannelResolver{
		api:   api,
		cache: cache.New(channelCacheTTL, 2*channelCacheTTL),
	}
}

// Resolve returns the conversation id for channel. Values that do not start
// with '#' are treated as ids already.
func (r *ChannelResolver) Resolve(ctx context.Context, channel string) (string, error) {
	if !strings.HasPrefix(channel, "#") {
		return channel, nil
	}
	name := strings.TrimPrefix(channel, "#")
	cacheKey := "channel:" + name
	if id, found := r.cache.Get(cacheKey); found {
		return id.(string), nil
	}

	params := &slackapi.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           200,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, next, err := r.api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("slack: list conversations: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				r.cache.Set(cacheKey, ch.ID, cache.DefaultExpiration)
				return ch.ID, nil
			}
		}
		if next == "" {
			return "", fmt.Errorf("%w: %s", ErrChannelNotFound, channel)
		}
		params.Cursor = next
	}
}

// isAPIError reports whether err is a Slack error response with one of codes.
func isAPIError(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	var resp slackapi.SlackErrorResponse
	if errors.As(err, &resp) {
		msg = resp.Err
	}
	for _, code := range codes {
		if msg == code {
			return true
		}
	}
	return false
}
