package telegram

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/channels"
)

// handleMessage converts an incoming Telegram message and publishes it.
func (c *Channel) handleMessage(message *telego.Message) {
	// Service messages (member added/removed, title changed, ...) carry no
	// user content.
	if isServiceMessage(message) {
		slog.Debug("telegram service message skipped", "chat_id", message.Chat.ID)
		return
	}

	msg, ok := toInbound(message, c.selfID, c.username)
	if !ok {
		return
	}

	slog.Debug("telegram message received",
		"chat_type", message.Chat.Type,
		"chat_id", msg.ChatID,
		"sender_id", msg.SenderID,
		"text_preview", channels.Truncate(msg.PlainText(), 60),
	)

	c.HandleMessage(msg)
}

// toInbound builds the inbound message. A mention of the bot (by @username,
// bot command suffix, or reply to one of its messages) becomes an at-segment
// targeting selfID and is removed from the text.
func toInbound(message *telego.Message, selfID, botUsername string) (bus.InboundMessage, bool) {
	user := message.From
	if user == nil || user.IsBot {
		return bus.InboundMessage{}, false
	}

	userID := strconv.FormatInt(user.ID, 10)
	senderID := userID
	if user.Username != "" {
		senderID = userID + "|" + user.Username
	}

	chatIDStr := strconv.FormatInt(message.Chat.ID, 10)
	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"

	msg := bus.InboundMessage{
		ConnID:    connID,
		SelfID:    selfID,
		SenderID:  senderID,
		ChatID:    chatIDStr,
		MessageID: strconv.Itoa(message.MessageID),
		Scope:     bus.Private(),
		Metadata: map[string]string{
			"user_id":  userID,
			"username": user.Username,
		},
	}
	if isGroup {
		msg.Scope = bus.Group(chatIDStr)
	} else {
		msg.ChatID = userID
	}

	text := message.Text
	if text == "" {
		text = message.Caption
	}
	msg.Raw = text

	if detectMention(message, botUsername) {
		msg.Segments = append(msg.Segments, bus.AtSegment(selfID))
		text = stripMention(text, botUsername)
	}
	if text != "" {
		msg.Segments = append(msg.Segments, bus.TextSegment(text))
	}
	msg.Segments = append(msg.Segments, photoSegments(message)...)

	return msg, true
}

// detectMention checks if a Telegram message mentions the bot.
// Checks both msg.Text/Entities (text messages) and msg.Caption/CaptionEntities (photo/media messages).
func detectMention(msg *telego.Message, botUsername string) bool {
	if botUsername == "" {
		return false
	}
	lowerBot := strings.ToLower(botUsername)

	for _, pair := range []struct {
		entities []telego.MessageEntity
		text     string
	}{
		{msg.Entities, msg.Text},
		{msg.CaptionEntities, msg.Caption},
	} {
		if pair.text == "" {
			continue
		}
		for _, entity := range pair.entities {
			// Offsets are UTF-16 code units; fall back to the substring check
			// below when they do not line up with the byte string.
			if entity.Offset < 0 || entity.Offset+entity.Length > len(pair.text) {
				continue
			}
			part := pair.text[entity.Offset : entity.Offset+entity.Length]
			switch entity.Type {
			case "mention":
				if strings.EqualFold(part, "@"+botUsername) {
					return true
				}
			case "bot_command":
				if strings.Contains(strings.ToLower(part), "@"+lowerBot) {
					return true
				}
			}
		}
	}

	// Fallback: substring check in both text and caption
	if strings.Contains(strings.ToLower(msg.Text), "@"+lowerBot) ||
		strings.Contains(strings.ToLower(msg.Caption), "@"+lowerBot) {
		return true
	}

	// Reply to bot's message = implicit mention
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		if strings.EqualFold(msg.ReplyToMessage.From.Username, botUsername) {
			return true
		}
	}

	return false
}

// stripMention removes "@botname" occurrences, case-insensitively.
func stripMention(text, botUsername string) string {
	if botUsername == "" {
		return text
	}
	re := regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(botUsername))
	return strings.TrimSpace(re.ReplaceAllString(text, ""))
}

// isServiceMessage returns true if the Telegram message is a service/system message
// (member added/removed, title changed, pinned, etc.) rather than a user-sent message.
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}

	if msg.Photo != nil || msg.Audio != nil || msg.Video != nil ||
		msg.Document != nil || msg.Voice != nil || msg.VideoNote != nil ||
		msg.Sticker != nil || msg.Animation != nil || msg.Contact != nil ||
		msg.Location != nil || msg.Venue != nil || msg.Poll != nil {
		return false
	}

	return true
}
