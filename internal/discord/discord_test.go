package discord

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/apexion-ai/threadbot/internal/discord/discordtest"
	"github.com/apexion-ai/threadbot/internal/dispatch"
	"github.com/apexion-ai/threadbot/internal/prompt"
)

func newTestClient(t *testing.T, fake *discordtest.Server, opts Options) *Client {
	t.Helper()
	opts.Token = "test-token"
	opts.HTTPClient = fake.Client()
	c, err := NewClient(context.Background(), opts)
	require.NoError(t, err)
	return c
}

func TestNewClient_ResolvesBot(t *testing.T) {
	c := newTestClient(t, discordtest.NewServer(t), Options{})
	assert.Equal(t, "bot1", c.botID)
	assert.Equal(t, "threadbot", c.botName, "defaults to the bot's username")
	assert.Equal(t, DefaultClosedPrefix, c.closedPrefix)
}

func TestThread_Send(t *testing.T) {
	fake := discordtest.NewServer(t)
	c := newTestClient(t, fake, Options{})
	th, err := c.Thread(context.Background(), "t1")
	require.NoError(t, err)

	sent, err := th.Send(context.Background(), "hello")

	require.NoError(t, err)
	last := fake.Last()
	assert.Equal(t, "/api/v9/channels/t1/messages", last.Path)
	assert.Equal(t, "hello", gjson.Get(last.Body, "content").String())
	assert.Equal(t, "https://discord.com/channels/g1/t1/"+sent.ID, sent.URL)
}

func TestThread_Notify(t *testing.T) {
	tests := []struct {
		severity dispatch.Severity
		color    int64
	}{
		{dispatch.SeverityInfo, colorGreen},
		{dispatch.SeverityWarning, colorYellow},
		{dispatch.SeverityError, colorRed},
	}
	for _, tt := range tests {
		t.Run(tt.severity.String(), func(t *testing.T) {
			fake := discordtest.NewServer(t)
			c := newTestClient(t, fake, Options{})
			th, err := c.Thread(context.Background(), "t1")
			require.NoError(t, err)

			_, err = th.Notify(context.Background(), dispatch.Notice{Text: "**Error** - boom", Severity: tt.severity})

			require.NoError(t, err)
			body := fake.Last().Body
			assert.Equal(t, "**Error** - boom", gjson.Get(body, "embeds.0.description").String())
			assert.Equal(t, tt.color, gjson.Get(body, "embeds.0.color").Int())
			assert.Empty(t, gjson.Get(body, "content").String())
		})
	}
}

func TestThread_Close(t *testing.T) {
	fake := discordtest.NewServer(t)
	c := newTestClient(t, fake, Options{})
	th, err := c.Thread(context.Background(), "t1")
	require.NoError(t, err)

	require.NoError(t, th.Close(context.Background()))

	last := fake.Last()
	assert.Equal(t, http.MethodPatch, last.Method)
	assert.Equal(t, "/api/v9/channels/t1", last.Path)
	assert.Equal(t, "❌ help me", gjson.Get(last.Body, "name").String())
	assert.True(t, gjson.Get(last.Body, "archived").Bool())
	assert.True(t, gjson.Get(last.Body, "locked").Bool())

	// Closing twice does not stack prefixes.
	require.NoError(t, th.Close(context.Background()))
	assert.Equal(t, "❌ help me", gjson.Get(fake.Last().Body, "name").String())
}

func TestThread_CloseError(t *testing.T) {
	fake := discordtest.NewServer(t)
	fake.FailOn = "PATCH /api/v9/channels/t1"
	c := newTestClient(t, fake, Options{})
	th, err := c.Thread(context.Background(), "t1")
	require.NoError(t, err)

	err = th.Close(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing Permissions")
}

func TestThread_History(t *testing.T) {
	fake := discordtest.NewServer(t)
	fake.History = `[
		{"id":"5","content":"and you?","author":{"id":"u1","username":"alice"}},
		{"id":"4","content":"","author":{"id":"bot1","username":"threadbot"},"embeds":[{"description":"notice"}]},
		{"id":"3","content":"fine","author":{"id":"bot1","username":"threadbot"}},
		{"id":"2","content":"how are you","author":{"id":"u1","username":"alice"}}
	]`
	c := newTestClient(t, fake, Options{BotName: "Bot"})
	th, err := c.Thread(context.Background(), "t1")
	require.NoError(t, err)

	h, err := th.History(context.Background(), 30)

	require.NoError(t, err)
	assert.Equal(t, prompt.Conversation{
		{Author: "alice", Text: "how are you"},
		{Author: "Bot", Text: "fine"},
		{Author: "alice", Text: "and you?"},
	}, h.Messages)
	assert.Equal(t, "u1", h.UserID)
	assert.Equal(t, "30", fake.Last().Query.Get("limit"))
}

func TestThread_HistoryUserIDSkipsBot(t *testing.T) {
	fake := discordtest.NewServer(t)
	fake.History = `[
		{"id":"3","content":"reply","author":{"id":"bot1","username":"threadbot"}},
		{"id":"2","content":"second","author":{"id":"u2","username":"bob"}},
		{"id":"1","content":"first","author":{"id":"u1","username":"alice"}}
	]`
	c := newTestClient(t, fake, Options{})
	th, err := c.Thread(context.Background(), "t1")
	require.NoError(t, err)

	h, err := th.History(context.Background(), 10)

	require.NoError(t, err)
	assert.Len(t, h.Messages, 3)
	assert.Equal(t, "u2", h.UserID, "newest author that is not the bot")
}

func TestThread_HistoryClampsLimit(t *testing.T) {
	fake := discordtest.NewServer(t)
	fake.History = `[]`
	c := newTestClient(t, fake, Options{})
	th, err := c.Thread(context.Background(), "t1")
	require.NoError(t, err)

	h, err := th.History(context.Background(), 500)

	require.NoError(t, err)
	assert.Empty(t, h.Messages)
	assert.Empty(t, h.UserID)
	assert.Equal(t, "100", fake.Last().Query.Get("limit"))
}

func TestModerationLog(t *testing.T) {
	fake := discordtest.NewServer(t)
	c := newTestClient(t, fake, Options{})
	log := c.ModerationLog("modchan")

	err := log.Flagged(context.Background(), dispatch.Report{
		User:       "u1",
		Categories: "(violence) ",
		Text:       "some reply",
		URL:        "https://discord.com/channels/g1/t1/m9",
		ThreadID:   "t1",
	})

	require.NoError(t, err)
	last := fake.Last()
	assert.Equal(t, "/api/v9/channels/modchan/messages", last.Path)
	embed := gjson.Get(last.Body, "embeds.0")
	assert.Equal(t, "Flagged message", embed.Get("title").String())
	assert.Equal(t, int64(colorYellow), embed.Get("color").Int())
	assert.Equal(t, "<@u1>", embed.Get("fields.0.value").String())
	assert.Equal(t, "(violence)", embed.Get("fields.1.value").String())
	assert.Equal(t, "https://discord.com/channels/g1/t1/m9", embed.Get("fields.3.value").String())
	assert.Equal(t, "some reply", embed.Get("fields.4.value").String())

	require.NoError(t, log.Blocked(context.Background(), dispatch.Report{User: "u1", Text: ""}))
	embed = gjson.Get(fake.Last().Body, "embeds.0")
	assert.Equal(t, "Blocked message", embed.Get("title").String())
	assert.Equal(t, int64(colorRed), embed.Get("color").Int())
	assert.Equal(t, "-", embed.Get("fields.4.value").String())
}

func TestMessageURL(t *testing.T) {
	assert.Equal(t, "https://discord.com/channels/g/c/m", MessageURL("g", "c", "m"))
	assert.Equal(t, "https://discord.com/channels/@me/c/m", MessageURL("", "c", "m"))
}
