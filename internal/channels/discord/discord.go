package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/channels"
	"github.com/mikann-OMO/bot/internal/config"
)

// connID is the connection key of the gateway session.
const connID = "discord"

// maxMessageLen is Discord's limit for one message.
const maxMessageLen = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	botUserID string // populated on start
	ctx       context.Context
	live      atomic.Bool
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, msgBus bus.MessageRouter) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
		ctx:         context.Background(),
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting discord bot")
	c.ctx = ctx

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		c.botUserID = r.User.ID
		if !c.live.Swap(true) {
			c.Connected(c.ctx, connID, r.User.ID)
		}
	})
	c.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		if c.live.Swap(false) {
			c.Disconnected()
		}
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message. Group replies go to the channel the
// message came from; private messages open a DM channel with the user.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}

	channelID := msg.ChatID
	if !msg.Scope.IsGroup() {
		dm, err := c.session.UserChannelCreate(msg.ChatID)
		if err != nil {
			return fmt.Errorf("open discord DM: %w", err)
		}
		channelID = dm.ID
	}

	p := msg.Payload
	switch {
	case p.Kind == bus.PayloadImage && p.Local:
		data, err := channels.LoadImage(p.Image, c.config.MaxImageDim)
		if err != nil {
			return err
		}
		if _, err := c.session.ChannelFileSend(channelID, channels.ImageName(p.Image), bytes.NewReader(data)); err != nil {
			return fmt.Errorf("send discord file: %w", err)
		}
		return nil
	case p.Kind == bus.PayloadImage:
		embed := &discordgo.MessageEmbed{Image: &discordgo.MessageEmbedImage{URL: p.Image}}
		if _, err := c.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
			return fmt.Errorf("send discord embed: %w", err)
		}
		return nil
	}
	return c.sendChunked(channelID, p.Text)
}

// sendChunked sends a message, splitting into multiple messages if over 2000 chars.
func (c *Channel) sendChunked(channelID, content string) error {
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxMessageLen {
			// Try to break at a newline
			cutAt := maxMessageLen
			if idx := strings.LastIndexByte(content[:maxMessageLen], '\n'); idx > maxMessageLen/2 {
				cutAt = idx + 1
			} else {
				for cutAt > 0 && !isRuneStart(content[cutAt]) {
					cutAt--
				}
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}

		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}

	return nil
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// handleMessage processes incoming Discord messages.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := toInbound(m, c.botUserID)
	if !ok {
		return
	}

	slog.Debug("discord message received",
		"sender_id", msg.SenderID,
		"channel_id", m.ChannelID,
		"is_dm", !msg.Scope.IsGroup(),
		"preview", channels.Truncate(msg.PlainText(), 50),
	)

	c.HandleMessage(msg)
}

// toInbound converts a gateway message. Guild messages are scoped to their
// channel; DMs are keyed by the author so private replies can reopen the DM.
func toInbound(m *discordgo.MessageCreate, botUserID string) (bus.InboundMessage, bool) {
	if m.Author == nil || m.Author.ID == botUserID || m.Author.Bot {
		return bus.InboundMessage{}, false
	}

	msg := bus.InboundMessage{
		ConnID:    connID,
		SelfID:    botUserID,
		SenderID:  m.Author.ID,
		MessageID: m.ID,
		Raw:       m.Content,
		Metadata: map[string]string{
			"username":     m.Author.Username,
			"display_name": resolveDisplayName(m),
			"guild_id":     m.GuildID,
		},
	}
	if m.GuildID == "" {
		msg.Scope = bus.Private()
		msg.ChatID = m.Author.ID
	} else {
		msg.Scope = bus.Group(m.ChannelID)
		msg.ChatID = m.ChannelID
	}

	text := m.Content
	for _, u := range m.Mentions {
		if u.ID != botUserID {
			continue
		}
		msg.Segments = append(msg.Segments, bus.AtSegment(botUserID))
		text = strings.NewReplacer("<@"+botUserID+">", "", "<@!"+botUserID+">", "").Replace(text)
		break
	}
	if text = strings.TrimSpace(text); text != "" {
		msg.Segments = append(msg.Segments, bus.TextSegment(text))
	}

	for _, att := range m.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			seg := bus.ImageSegment(att.URL)
			seg.File = att.Filename
			msg.Segments = append(msg.Segments, seg)
		}
	}

	return msg, true
}

// resolveDisplayName returns the best available display name for a Discord message author.
// Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
