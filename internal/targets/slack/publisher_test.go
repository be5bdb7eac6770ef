package slack

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/targets"
)

type fakeAPI struct {
	channels  []slackapi.Channel
	listCalls int
	posted    map[string]string // channel:ts -> text
	updateErr error
	editErr   error
	canvases  map[string]string
	canvasIn  map[string]string // canvas id -> channel id
	nextTS    int
	lastText  string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		channels: []slackapi.Channel{
			{GroupConversation: slackapi.GroupConversation{Conversation: slackapi.Conversation{ID: "C0"}, Name: "general"}},
			{GroupConversation: slackapi.GroupConversation{Conversation: slackapi.Conversation{ID: "C1"}, Name: "monologue"}},
		},
		posted:   map[string]string{},
		canvases: map[string]string{},
		canvasIn: map[string]string{},
	}
}

func textOf(channel string, opts []slackapi.MsgOption) string {
	_, values, err := slackapi.UnsafeApplyMsgOptions("", channel, "", opts...)
	if err != nil {
		return ""
	}
	return values.Get("text")
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	f.nextTS++
	ts := fmt.Sprintf("1700000000.%06d", f.nextTS)
	f.lastText = textOf(channelID, options)
	f.posted[channelID+":"+ts] = f.lastText
	return channelID, ts, nil
}

func (f *fakeAPI) UpdateMessageContext(_ context.Context, channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error) {
	if f.updateErr != nil {
		return "", "", "", f.updateErr
	}
	key := channelID + ":" + timestamp
	if _, ok := f.posted[key]; !ok {
		return "", "", "", slackapi.SlackErrorResponse{Err: "message_not_found"}
	}
	f.lastText = textOf(channelID, options)
	f.posted[key] = f.lastText
	return channelID, timestamp, f.lastText, nil
}

func (f *fakeAPI) GetConversationsContext(_ context.Context, params *slackapi.GetConversationsParameters) ([]slackapi.Channel, string, error) {
	f.listCalls++
	// one channel per page to exercise the cursor
	i := 0
	if params.Cursor != "" {
		_, _ = fmt.Sscanf(params.Cursor, "page-%d", &i)
	}
	if i >= len(f.channels) {
		return nil, "", nil
	}
	next := ""
	if i+1 < len(f.channels) {
		next = fmt.Sprintf("page-%d", i+1)
	}
	return f.channels[i : i+1], next, nil
}

func (f *fakeAPI) CreateChannelCanvasContext(_ context.Context, channel string, doc slackapi.DocumentContent) (string, error) {
	id := fmt.Sprintf("F%d", len(f.canvases)+1)
	f.canvases[id] = doc.Markdown
	f.canvasIn[id] = channel
	return id, nil
}

func (f *fakeAPI) EditCanvasContext(_ context.Context, params slackapi.EditCanvasParams) error {
	if f.editErr != nil {
		return f.editErr
	}
	if _, ok := f.canvases[params.CanvasID]; !ok {
		return slackapi.SlackErrorResponse{Err: "canvas_not_found"}
	}
	f.canvases[params.CanvasID] = params.Changes[0].DocumentContent.Markdown
	return nil
}

func testEntry() *models.Entry {
	return &models.Entry{
		Date:      time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC),
		Title:     "Weekly notes",
		Body:      "## Intro\n\nSee [docs](https://example.com) for **more**.",
		RemoteIDs: map[string]string{models.TargetNotion: "https://notion.so/ws/0123456789abcdef0123456789abcdef"},
	}
}

func TestMrkdwn(t *testing.T) {
	in := "# Title\n\nA [link](https://x.y) and **bold** and __also__.\n\n```\n## not a heading\n**kept**\n```"
	want := "*Title*\n\nA <https://x.y|link> and *bold* and *also*.\n\n```\n## not a heading\n**kept**\n```"
	assert.Equal(t, want, Mrkdwn(in))
}

func TestMessageText(t *testing.T) {
	text := MessageText(testEntry())
	assert.Equal(t, "*2025-02-07: Weekly notes*\n"+
		"Notion: <https://notion.so/ws/0123456789abcdef0123456789abcdef>\n\n"+
		"*Intro*\n\nSee <https://example.com|docs> for *more*.", text)
}

func TestPublishPostsToResolvedChannel(t *testing.T) {
	api := newFakeAPI()
	p := New(api, "#monologue", nil)

	res := p.Publish(context.Background(), testEntry(), "", targets.Options{})
	require.Equal(t, targets.StatusCreated, res.Status, res.Detail)
	assert.Equal(t, "C1:1700000000.000001", res.RemoteID)
	assert.Equal(t, 2, api.listCalls)

	res = p.Publish(context.Background(), testEntry(), "", targets.Options{})
	require.Equal(t, targets.StatusCreated, res.Status)
	assert.Equal(t, 2, api.listCalls, "channel id should be cached")
}

func TestPublishUnknownChannelFails(t *testing.T) {
	p := New(newFakeAPI(), "#nope", nil)
	res := p.Publish(context.Background(), testEntry(), "", targets.Options{})
	assert.Equal(t, targets.StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "channel not found")
}

func TestPublishUpdatesMessage(t *testing.T) {
	api := newFakeAPI()
	api.posted["C1:1.000001"] = "old"
	p := New(api, "#monologue", nil)

	res := p.Publish(context.Background(), testEntry(), "C1:1.000001", targets.Options{})
	require.Equal(t, targets.StatusUpdated, res.Status, res.Detail)
	assert.Equal(t, "C1:1.000001", res.RemoteID)
	assert.Contains(t, api.posted["C1:1.000001"], "Weekly notes")
}

func TestPublishDeletedMessagePostsNew(t *testing.T) {
	api := newFakeAPI()
	p := New(api, "C1", nil)

	res := p.Publish(context.Background(), testEntry(), "C1:9.999999", targets.Options{})
	require.Equal(t, targets.StatusCreated, res.Status, res.Detail)
	assert.NotEqual(t, "C1:9.999999", res.RemoteID)
}

func TestPublishUpdateFailure(t *testing.T) {
	api := newFakeAPI()
	api.updateErr = errors.New("invalid_auth")
	p := New(api, "C1", nil)

	res := p.Publish(context.Background(), testEntry(), "C1:1.0", targets.Options{})
	assert.Equal(t, targets.StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "invalid_auth")
}

func TestPublishCanvas(t *testing.T) {
	api := newFakeAPI()
	p := New(api, "#monologue", nil)
	opts := targets.Options{AsCanvas: true}

	res := p.Publish(context.Background(), testEntry(), "C1:1.0", opts)
	require.Equal(t, targets.StatusCreated, res.Status, res.Detail)
	assert.Equal(t, "canvas:F1", res.RemoteID)
	assert.Equal(t, "C1", api.canvasIn["F1"], "canvas belongs to the configured channel")

	e := testEntry()
	e.Body = "changed"
	res = p.Publish(context.Background(), e, "canvas:F1", opts)
	require.Equal(t, targets.StatusUpdated, res.Status, res.Detail)
	assert.Equal(t, "changed", api.canvases["F1"])

	res = p.Publish(context.Background(), e, "canvas:F404", opts)
	require.Equal(t, targets.StatusCreated, res.Status, res.Detail)
	assert.Equal(t, "canvas:F2", res.RemoteID)
	assert.Equal(t, "C1", api.canvasIn["F2"])
}

func TestPublishCanvasUnknownChannel(t *testing.T) {
	api := newFakeAPI()
	p := New(api, "#nowhere", nil)

	res := p.Publish(context.Background(), testEntry(), "", targets.Options{AsCanvas: true})
	assert.Equal(t, targets.StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "channel not found")
	assert.Empty(t, api.canvases)
}

func TestPublishCanvasIDIgnoredForMessages(t *testing.T) {
	api := newFakeAPI()
	p := New(api, "C1", nil)

	res := p.Publish(context.Background(), testEntry(), "canvas:F1", targets.Options{})
	require.Equal(t, targets.StatusCreated, res.Status, res.Detail)
	assert.Len(t, api.posted, 1)
}

func TestPublishDryRun(t *testing.T) {
	api := newFakeAPI()
	p := New(api, "#monologue", nil)

	res := p.Publish(context.Background(), testEntry(), "", targets.Options{DryRun: true})
	assert.Equal(t, targets.StatusPreviewed, res.Status)
	assert.Equal(t, "dry-run:slack:2025-02-07", res.RemoteID)
	assert.Zero(t, api.listCalls)
	assert.Empty(t, api.posted)
}
