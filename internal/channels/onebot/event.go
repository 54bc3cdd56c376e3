package onebot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/pkg/protocol"
)

// frame is any JSON object received from the OneBot implementation: either
// an event (post_type set) or an action response (echo set).
type frame struct {
	// events
	PostType      string          `json:"post_type"`
	MessageType   string          `json:"message_type"`
	SubType       string          `json:"sub_type"`
	MetaEventType string          `json:"meta_event_type"`
	NoticeType    string          `json:"notice_type"`
	MessageID     json.RawMessage `json:"message_id"`
	UserID        json.RawMessage `json:"user_id"`
	GroupID       json.RawMessage `json:"group_id"`
	SelfID        json.RawMessage `json:"self_id"`
	RawMessage    string          `json:"raw_message"`
	Message       json.RawMessage `json:"message"`

	// action responses
	Echo    json.RawMessage `json:"echo"`
	Status  json.RawMessage `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Wording string          `json:"wording"`
}

type actionRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

type actionResponse struct {
	Status  string
	RetCode int
	Data    json.RawMessage
	Wording string
}

// wireSegment is one element of a OneBot array-form message.
type wireSegment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ActionError is a failed action response.
type ActionError struct {
	Action  string
	RetCode int
	Wording string
}

func (e *ActionError) Error() string {
	if e.Wording != "" {
		return fmt.Sprintf("onebot %s failed: retcode %d: %s", e.Action, e.RetCode, e.Wording)
	}
	return fmt.Sprintf("onebot %s failed: retcode %d", e.Action, e.RetCode)
}

// echoString returns the echo value as a string; implementations may echo
// numbers back even when a string was sent.
func echoString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return parseID(raw)
}

// parseID reads an ID that may be encoded as a JSON number or a string.
func parseID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}

// statusString reads the action status, which is a string in OneBot v11.
func statusString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// parseMessage converts the message field, in array or CQ-string form, into segments.
func parseMessage(raw json.RawMessage) []bus.Segment {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseCQ(s)
	}

	var wire []struct {
		Type string                     `json:"type"`
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil
	}

	segs := make([]bus.Segment, 0, len(wire))
	for _, w := range wire {
		get := func(k string) string { return parseID(w.Data[k]) }
		if seg, ok := toSegment(w.Type, get); ok {
			segs = append(segs, seg)
		}
	}
	return segs
}

// toSegment maps one OneBot segment to the inbound model. Unsupported
// segment types (face, reply, record, ...) are dropped.
func toSegment(typ string, get func(string) string) (bus.Segment, bool) {
	switch typ {
	case protocol.SegmentText:
		return bus.TextSegment(get("text")), true
	case protocol.SegmentImage:
		seg := bus.ImageSegment(get("url"))
		seg.File = get("file")
		if seg.URL == "" && (strings.HasPrefix(seg.File, "http://") || strings.HasPrefix(seg.File, "https://")) {
			seg.URL = seg.File
		}
		return seg, true
	case protocol.SegmentAt:
		return bus.AtSegment(get("qq")), true
	}
	return bus.Segment{}, false
}

// parseCQ parses the CQ-code string form:
// "hello[CQ:at,qq=123] [CQ:image,file=a.jpg,url=https://...]".
func parseCQ(s string) []bus.Segment {
	var segs []bus.Segment
	for len(s) > 0 {
		start := strings.Index(s, "[CQ:")
		if start < 0 {
			segs = appendText(segs, unescapeCQ(s, false))
			break
		}
		if start > 0 {
			segs = appendText(segs, unescapeCQ(s[:start], false))
		}
		end := strings.IndexByte(s[start:], ']')
		if end < 0 {
			segs = appendText(segs, unescapeCQ(s[start:], false))
			break
		}
		code := s[start+len("[CQ:") : start+end]
		s = s[start+end+1:]

		typ, rest, _ := strings.Cut(code, ",")
		params := make(map[string]string)
		if rest != "" {
			for _, kv := range strings.Split(rest, ",") {
				k, v, _ := strings.Cut(kv, "=")
				params[k] = unescapeCQ(v, true)
			}
		}
		if seg, ok := toSegment(typ, func(k string) string { return params[k] }); ok {
			segs = append(segs, seg)
		}
	}
	return segs
}

func appendText(segs []bus.Segment, text string) []bus.Segment {
	if text == "" {
		return segs
	}
	return append(segs, bus.TextSegment(text))
}

var (
	cqTextUnescaper  = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&amp;", "&")
	cqParamUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")
)

func unescapeCQ(s string, param bool) string {
	if param {
		return cqParamUnescaper.Replace(s)
	}
	return cqTextUnescaper.Replace(s)
}

// toInbound converts a message event. ok is false for non-message events and
// message events without a routable target.
func toInbound(f *frame, connID, selfID string) (bus.InboundMessage, bool) {
	if f.PostType != protocol.PostTypeMessage {
		return bus.InboundMessage{}, false
	}

	if id := parseID(f.SelfID); id != "" {
		selfID = id
	}
	msg := bus.InboundMessage{
		ConnID:    connID,
		SelfID:    selfID,
		SenderID:  parseID(f.UserID),
		MessageID: parseID(f.MessageID),
		Segments:  parseMessage(f.Message),
		Raw:       f.RawMessage,
	}
	if msg.SenderID == "" {
		return bus.InboundMessage{}, false
	}

	switch f.MessageType {
	case protocol.MessageTypeGroup:
		groupID := parseID(f.GroupID)
		if groupID == "" {
			return bus.InboundMessage{}, false
		}
		msg.Scope = bus.Group(groupID)
		msg.ChatID = groupID
	case protocol.MessageTypePrivate:
		msg.Scope = bus.Private()
		msg.ChatID = msg.SenderID
	default:
		return bus.InboundMessage{}, false
	}
	if f.SubType != "" {
		msg.Metadata = map[string]string{"sub_type": f.SubType}
	}
	return msg, true
}

// buildSend returns the action and params delivering out.
// Local images are inlined as base64 through loadLocal.
func buildSend(out bus.OutboundMessage, loadLocal func(path string) (string, error)) (string, map[string]any, error) {
	seg, err := payloadSegment(out.Payload, loadLocal)
	if err != nil {
		return "", nil, err
	}

	id, err := strconv.ParseInt(out.ChatID, 10, 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid chat id %q: %w", out.ChatID, err)
	}

	params := map[string]any{"message": []wireSegment{seg}}
	if out.Scope.IsGroup() {
		params["group_id"] = id
		return protocol.ActionSendGroupMsg, params, nil
	}
	params["user_id"] = id
	return protocol.ActionSendPrivateMsg, params, nil
}

func payloadSegment(p bus.Payload, loadLocal func(string) (string, error)) (wireSegment, error) {
	if p.Kind != bus.PayloadImage {
		return wireSegment{Type: protocol.SegmentText, Data: map[string]any{"text": p.Text}}, nil
	}
	file := p.Image
	if p.Local {
		encoded, err := loadLocal(p.Image)
		if err != nil {
			return wireSegment{}, err
		}
		file = encoded
	}
	return wireSegment{Type: protocol.SegmentImage, Data: map[string]any{"file": file}}, nil
}
