package protocol

// ProtocolVersion is the OneBot protocol revision spoken by the QQ adapter.
const ProtocolVersion = 11

// OneBot v11 post types (event.post_type).
const (
	PostTypeMessage   = "message"
	PostTypeNotice    = "notice"
	PostTypeRequest   = "request"
	PostTypeMetaEvent = "meta_event"
)

// Message types (event.message_type).
const (
	MessageTypeGroup   = "group"
	MessageTypePrivate = "private"
)

// Meta event types (event.meta_event_type).
const (
	MetaEventLifecycle = "lifecycle"
	MetaEventHeartbeat = "heartbeat"
)

// Lifecycle sub types.
const (
	LifecycleConnect = "connect"
	LifecycleEnable  = "enable"
	LifecycleDisable = "disable"
)

// Message segment types (message[].type).
const (
	SegmentText  = "text"
	SegmentImage = "image"
	SegmentAt    = "at"
	SegmentFace  = "face"
	SegmentReply = "reply"
)

// Reverse WebSocket handshake headers sent by OneBot implementations.
const (
	HeaderSelfID = "X-Self-ID"
	HeaderRole   = "X-Client-Role"
)
