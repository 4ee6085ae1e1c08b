// Package discord adapts Discord threads and a moderation-log channel to the
// dispatch interfaces over the REST API. It never opens a gateway session.
package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/apexion-ai/threadbot/internal/dispatch"
	"github.com/apexion-ai/threadbot/internal/prompt"
)

// Embed colours, matching Discord's palette.
const (
	colorGreen  = 0x2ecc71
	colorYellow = 0xf1c40f
	colorRed    = 0xe74c3c
)

// DefaultClosedPrefix is prepended to a thread's name when it is retired.
const DefaultClosedPrefix = "❌"

// MaxHistory is Discord's page size for message listings.
const MaxHistory = 100

// Client is a REST-only Discord connection acting as the bot user.
type Client struct {
	session      *discordgo.Session
	botID        string
	botName      string
	closedPrefix string
	logger       *zap.Logger
}

// Options configures a Client.
type Options struct {
	Token        string
	BotName      string // author name used for the bot's own messages in history
	ClosedPrefix string
	Logger       *zap.Logger

	// HTTPClient replaces discordgo's default client when set.
	HTTPClient *http.Client
}

// NewClient creates a Client and resolves the bot's own user ID.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	if opts.HTTPClient != nil {
		s.Client = opts.HTTPClient
	}
	return newClient(ctx, s, opts)
}

func newClient(ctx context.Context, s *discordgo.Session, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ClosedPrefix == "" {
		opts.ClosedPrefix = DefaultClosedPrefix
	}
	me, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("resolve bot user: %w", err)
	}
	if opts.BotName == "" {
		opts.BotName = me.Username
	}
	return &Client{
		session:      s,
		botID:        me.ID,
		botName:      opts.BotName,
		closedPrefix: opts.ClosedPrefix,
		logger:       opts.Logger,
	}, nil
}

// Thread looks up a thread channel.
func (c *Client) Thread(ctx context.Context, channelID string) (*Thread, error) {
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", channelID, err)
	}
	return &Thread{client: c, id: ch.ID, guildID: ch.GuildID, name: ch.Name}, nil
}

// ModerationLog returns a log that posts reports into channelID.
func (c *Client) ModerationLog(channelID string) *ModerationLog {
	return &ModerationLog{client: c, channelID: channelID}
}

// Thread is a dispatch.Thread backed by a Discord thread channel.
type Thread struct {
	client  *Client
	id      string
	guildID string
	name    string
}

func (t *Thread) ID() string { return t.id }

func (t *Thread) Send(ctx context.Context, text string) (dispatch.Sent, error) {
	msg, err := t.client.session.ChannelMessageSend(t.id, text, discordgo.WithContext(ctx))
	if err != nil {
		return dispatch.Sent{}, fmt.Errorf("send message: %w", err)
	}
	return t.sent(msg), nil
}

// Notify posts n as an embed coloured by severity.
func (t *Thread) Notify(ctx context.Context, n dispatch.Notice) (dispatch.Sent, error) {
	msg, err := t.client.session.ChannelMessageSendEmbed(t.id, &discordgo.MessageEmbed{
		Description: n.Text,
		Color:       severityColor(n.Severity),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return dispatch.Sent{}, fmt.Errorf("send notice: %w", err)
	}
	return t.sent(msg), nil
}

// Close renames the thread with the closed prefix, then archives and locks it.
func (t *Thread) Close(ctx context.Context) error {
	name := t.name
	if !strings.HasPrefix(name, t.client.closedPrefix) {
		name = t.client.closedPrefix + " " + name
	}
	// Discord caps channel names at 100 characters.
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	archived, locked := true, true
	_, err := t.client.session.ChannelEditComplex(t.id, &discordgo.ChannelEdit{
		Name:     name,
		Archived: &archived,
		Locked:   &locked,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("close thread: %w", err)
	}
	t.name = name
	t.client.logger.Info("thread closed", zap.String("thread", t.id), zap.String("name", name))
	return nil
}

// History is a thread's recent text messages, oldest first.
type History struct {
	Messages prompt.Conversation

	// UserID is the ID of the newest message's author that is not the bot,
	// or empty when only the bot has spoken.
	UserID string
}

// History returns up to limit recent messages. Messages with no text
// (embed-only notices) are skipped and the bot's own messages are
// attributed to the bot name.
func (t *Thread) History(ctx context.Context, limit int) (History, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	msgs, err := t.client.session.ChannelMessages(t.id, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return History{}, fmt.Errorf("fetch history: %w", err)
	}

	h := History{Messages: make(prompt.Conversation, 0, len(msgs))}
	// The API lists newest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Content == "" || m.Author == nil {
			continue
		}
		author := m.Author.Username
		if m.Author.ID == t.client.botID {
			author = t.client.botName
		} else {
			h.UserID = m.Author.ID
		}
		h.Messages = append(h.Messages, prompt.Message{Author: author, Text: m.Content})
	}
	return h, nil
}

func (t *Thread) sent(msg *discordgo.Message) dispatch.Sent {
	return dispatch.Sent{ID: msg.ID, URL: MessageURL(t.guildID, t.id, msg.ID)}
}

// MessageURL builds a jump link to a message.
func MessageURL(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

func severityColor(s dispatch.Severity) int {
	switch s {
	case dispatch.SeverityWarning:
		return colorYellow
	case dispatch.SeverityError:
		return colorRed
	default:
		return colorGreen
	}
}

// ModerationLog is a dispatch.ModerationLog that posts embeds to a channel.
type ModerationLog struct {
	client    *Client
	channelID string
}

func (l *ModerationLog) Flagged(ctx context.Context, r dispatch.Report) error {
	return l.post(ctx, "Flagged message", colorYellow, r)
}

func (l *ModerationLog) Blocked(ctx context.Context, r dispatch.Report) error {
	return l.post(ctx, "Blocked message", colorRed, r)
}

func (l *ModerationLog) post(ctx context.Context, title string, color int, r dispatch.Report) error {
	text := r.Text
	// Embed field values are limited to 1024 characters.
	if rs := []rune(text); len(rs) > 1024 {
		text = string(rs[:1021]) + "..."
	}
	embed := &discordgo.MessageEmbed{
		Title: title,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: "<@" + r.User + ">", Inline: true},
			{Name: "Categories", Value: orDash(strings.TrimSpace(r.Categories)), Inline: true},
			{Name: "Thread", Value: "<#" + r.ThreadID + ">", Inline: true},
			{Name: "Message", Value: orDash(r.URL)},
			{Name: "Text", Value: orDash(text)},
		},
	}
	if _, err := l.client.session.ChannelMessageSendEmbed(l.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("post moderation log: %w", err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
