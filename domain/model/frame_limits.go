package model

// Per-type frame ceilings in bytes, derived from the maximum legal payload
// of each frame (longest field bounds plus JSON overhead). A line longer
// than its type's ceiling fails invalid-message-format before the payload is
// parsed. Zero means unlimited (server-produced, size bounded elsewhere).
var messageTypeLimits = map[string]int64{
	// client -> server
	"ChatSend":         1056,
	"ChatTopicUpdate":  293,
	"ChatTopicGet":     25,
	"Handshake":        728,
	"Login":            176945,
	"UserBroadcast":    1061,
	"UserCreate":       944,
	"UserDelete":       67,
	"UserEdit":         65,
	"UserInfo":         65,
	"UserKick":         65,
	"UserList":         19,
	"UserUpdate":       1040,
	"ServerInfoUpdate": 700512,

	// server -> client (shared table so the bridge can police both ways)
	"ChatMessage":              1129,
	"ChatTopic":                340,
	"ChatTopicResponse":        620,
	"ChatTopicUpdateResponse":  573,
	"Error":                    2154,
	"HandshakeResponse":        356,
	"LoginResponse":            703458,
	"PermissionsUpdated":       703396,
	"ServerBroadcast":          1133,
	"ServerInfoUpdated":        703472,
	"ServerInfoUpdateResponse": 574,
	"UserConnected":            176294,
	"UserCreateResponse":       568,
	"UserDeleteResponse":       568,
	"UserDisconnected":         97,
	"UserEditResponse":         695,
	"UserBroadcastResponse":    571,
	"UserInfoResponse":         177412,
	"UserKickResponse":         566,
	"UserListResponse":         0, // unlimited, server-trusted
	"UserMessage":              1177,
	"UserMessageResponse":      569,
	"UserUpdated":              176347,
	"UserUpdateResponse":       568,
	"Kicked":                   130,
	"Disconnected":             150,
}

// MaxPayloadForType returns the byte ceiling for a frame type. The second
// return is false for types outside the protocol.
func MaxPayloadForType(messageType string) (int64, bool) {
	limit, ok := messageTypeLimits[messageType]
	return limit, ok
}

// IsKnownMessageType reports whether the type appears anywhere in the
// protocol (either direction).
func IsKnownMessageType(messageType string) bool {
	_, ok := messageTypeLimits[messageType]
	return ok
}

// MaxFrameLength is the absolute line-length ceiling applied by transports
// before the type is known. It must cover the largest legal frame.
const MaxFrameLength = 703472 + 1024
