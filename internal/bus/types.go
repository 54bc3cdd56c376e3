package bus

import (
	"context"
	"strings"
)

// SegmentType identifies the kind of a message segment.
type SegmentType string

const (
	SegmentText  SegmentType = "text"
	SegmentImage SegmentType = "image"
	SegmentAt    SegmentType = "at"
)

// Segment is one structured piece of an inbound message.
type Segment struct {
	Type   SegmentType `json:"type"`
	Text   string      `json:"text,omitempty"`   // SegmentText
	URL    string      `json:"url,omitempty"`    // SegmentImage: remote URL
	File   string      `json:"file,omitempty"`   // SegmentImage: platform file reference
	Target string      `json:"target,omitempty"` // SegmentAt: mentioned user ID
}

// TextSegment returns a text segment.
func TextSegment(s string) Segment { return Segment{Type: SegmentText, Text: s} }

// ImageSegment returns an image segment for a remote URL.
func ImageSegment(url string) Segment { return Segment{Type: SegmentImage, URL: url} }

// AtSegment returns a mention segment targeting userID.
func AtSegment(userID string) Segment { return Segment{Type: SegmentAt, Target: userID} }

// ScopeKind distinguishes group chats from private chats.
type ScopeKind string

const (
	ScopePrivate ScopeKind = "private"
	ScopeGroup   ScopeKind = "group"
)

// Scope is where a message was posted: Group(id) or Private.
type Scope struct {
	Kind    ScopeKind `json:"kind"`
	GroupID string    `json:"group_id,omitempty"`
}

// Group returns a group scope.
func Group(id string) Scope { return Scope{Kind: ScopeGroup, GroupID: id} }

// Private returns a private scope.
func Private() Scope { return Scope{Kind: ScopePrivate} }

// IsGroup reports whether the scope is a group chat.
func (s Scope) IsGroup() bool { return s.Kind == ScopeGroup }

// InboundMessage represents a message received from a channel (OneBot, Telegram, Discord).
type InboundMessage struct {
	Channel   string            `json:"channel"`
	ConnID    string            `json:"conn_id"`  // adapter connection; dispatch is serialized per connection
	SelfID    string            `json:"self_id"`  // bot account that received the message
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"` // reply target: group ID for groups, user ID for private chats
	MessageID string            `json:"message_id,omitempty"`
	Scope     Scope             `json:"scope"`
	Segments  []Segment         `json:"segments"`
	Raw       string            `json:"raw,omitempty"` // raw message text as delivered by the platform
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PlainText concatenates text segments, excluding mentions and images, and trims the result.
func (m InboundMessage) PlainText() string {
	var b strings.Builder
	for _, seg := range m.Segments {
		if seg.Type == SegmentText {
			b.WriteString(seg.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// MentionsSelf reports whether an at-segment targets the receiving bot account.
func (m InboundMessage) MentionsSelf() bool {
	if m.SelfID == "" {
		return false
	}
	for _, seg := range m.Segments {
		if seg.Type == SegmentAt && seg.Target == m.SelfID {
			return true
		}
	}
	return false
}

// ImageURLs returns the URLs of image segments in order.
func (m InboundMessage) ImageURLs() []string {
	var urls []string
	for _, seg := range m.Segments {
		if seg.Type == SegmentImage && seg.URL != "" {
			urls = append(urls, seg.URL)
		}
	}
	return urls
}

// PayloadKind tags an outbound payload.
type PayloadKind int

const (
	PayloadText PayloadKind = iota
	PayloadImage
)

// Payload is the rendered reply: Text(content) or Image(reference).
type Payload struct {
	Kind  PayloadKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Image string      `json:"image,omitempty"` // remote URL or absolute local path
	Local bool        `json:"local,omitempty"` // Image refers to a local file
}

// Text returns a text payload.
func Text(s string) Payload { return Payload{Kind: PayloadText, Text: s} }

// RemoteImage returns an image payload for a URL.
func RemoteImage(url string) Payload { return Payload{Kind: PayloadImage, Image: url} }

// LocalImage returns an image payload for an absolute local path.
func LocalImage(path string) Payload { return Payload{Kind: PayloadImage, Image: path, Local: true} }

// String renders the payload for logs.
func (p Payload) String() string {
	if p.Kind == PayloadImage {
		if p.Local {
			return "[image local " + p.Image + "]"
		}
		return "[image " + p.Image + "]"
	}
	return p.Text
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ConnID   string            `json:"conn_id,omitempty"`
	ChatID   string            `json:"chat_id"`
	Scope    Scope             `json:"scope"`
	Payload  Payload           `json:"payload"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MessageRouter abstracts inbound/outbound message routing between channels and the dispatcher.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
