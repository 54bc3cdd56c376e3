package protocol

// OneBot v11 action names.
const (
	ActionSendMsg        = "send_msg"
	ActionSendGroupMsg   = "send_group_msg"
	ActionSendPrivateMsg = "send_private_msg"
	ActionGetLoginInfo   = "get_login_info"
	ActionGetStatus      = "get_status"
	ActionGetVersionInfo = "get_version_info"
)

// Action response status values.
const (
	StatusOK     = "ok"
	StatusAsync  = "async"
	StatusFailed = "failed"
)

// Image segment file prefixes.
const (
	ImageFilePrefix   = "file://"
	ImageBase64Prefix = "base64://"
)
