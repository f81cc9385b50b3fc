package model

import (
	"encoding/json"
	"fmt"
)

// ServerMessage is a response or event frame sent to clients.
type ServerMessage interface {
	ServerType() string
}

// ServerInfo is attached to login and permission refresh frames so clients
// can render the server header without extra round-trips.
type ServerInfo struct {
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	Version             string  `json:"version"`
	ChatTopic           string  `json:"chat_topic"`
	ChatTopicSetBy      string  `json:"chat_topic_set_by"`
	ChatEnabled         bool    `json:"chat_enabled"`
	Image               string  `json:"image,omitempty"`
	MaxConnectionsPerIP *uint32 `json:"max_connections_per_ip,omitempty"` // admins only
}

// UserSummary is the per-user entry in presence events and user lists.
type UserSummary struct {
	Username   string   `json:"username"`
	LoginTime  int64    `json:"login_time"`
	IsAdmin    bool     `json:"is_admin"`
	SessionIDs []uint32 `json:"session_ids"`
	Locale     string   `json:"locale"`
	Avatar     string   `json:"avatar,omitempty"`
}

// UserDetail is the UserInfo response payload. Admin-only fields are nil for
// non-admin requesters.
type UserDetail struct {
	Username   string   `json:"username"`
	LoginTime  int64    `json:"login_time"`
	SessionIDs []uint32 `json:"session_ids"`
	Features   []string `json:"features"`
	CreatedAt  int64    `json:"created_at"`
	Locale     string   `json:"locale"`
	Avatar     string   `json:"avatar,omitempty"`
	IsAdmin    *bool    `json:"is_admin,omitempty"`
	Addresses  []string `json:"addresses,omitempty"`
}

type HandshakeResponse struct {
	Success       bool     `json:"success"`
	Version       string   `json:"version,omitempty"`
	ServerMajor   uint64   `json:"server_major,omitempty"`
	ServerMinor   uint64   `json:"server_minor,omitempty"`
	ErrorText     string   `json:"error,omitempty"`
	ServerFeature []string `json:"server_features,omitempty"`
}

type LoginResponse struct {
	Success     bool        `json:"success"`
	ErrorText   string      `json:"error,omitempty"`
	SessionID   *uint32     `json:"session_id,omitempty"`
	UserID      *int64      `json:"user_id,omitempty"`
	Username    string      `json:"username,omitempty"`
	IsAdmin     *bool       `json:"is_admin,omitempty"`
	Permissions []string    `json:"permissions,omitempty"`
	ServerInfo  *ServerInfo `json:"server_info,omitempty"`
	Locale      string      `json:"locale,omitempty"`
}

type ChatMessage struct {
	SessionID uint32 `json:"session_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
}

// ChatTopic is pushed to chat_topic holders whenever the topic changes.
type ChatTopic struct {
	Topic    string `json:"topic"`
	Username string `json:"username"`
}

type ChatTopicResponse struct {
	Success   bool   `json:"success"`
	ErrorText string `json:"error,omitempty"`
	Topic     string `json:"topic"`
	SetBy     string `json:"set_by"`
}

type ChatTopicUpdateResponse struct {
	Success   bool   `json:"success"`
	ErrorText string `json:"error,omitempty"`
}

type ServerBroadcast struct {
	SessionID uint32 `json:"session_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
}

type UserBroadcastResponse struct {
	Success   bool   `json:"success"`
	ErrorText string `json:"error,omitempty"`
}

type UserConnected struct {
	User UserSummary `json:"user"`
}

type UserDisconnected struct {
	SessionID uint32 `json:"session_id"`
	Username  string `json:"username"`
}

// UserUpdated is broadcast when a rename or admin-status change must be
// reflected in user lists.
type UserUpdated struct {
	PreviousUsername string      `json:"previous_username"`
	User             UserSummary `json:"user"`
}

// PermissionsUpdated is pushed to a user's own sessions after an admin edits
// their account.
type PermissionsUpdated struct {
	IsAdmin     bool        `json:"is_admin"`
	Permissions []string    `json:"permissions"`
	ServerInfo  *ServerInfo `json:"server_info,omitempty"`
}

type Kicked struct {
	By string `json:"by"`
}

// Disconnected is the synthetic shutdown notice sent to every session when
// the server stops.
type Disconnected struct {
	Reason string `json:"reason,omitempty"`
}

type UserCreateResponse struct {
	Success   bool   `json:"success"`
	ErrorText string `json:"error,omitempty"`
}

type UserDeleteResponse struct {
	Success   bool   `json:"success"`
	ErrorText string `json:"error,omitempty"`
}

type UserEditResponse struct {
	Success     bool     `json:"success"`
	ErrorText   string   `json:"error,omitempty"`
	Username    string   `json:"username,omitempty"`
	IsAdmin     *bool    `json:"is_admin,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type UserInfoResponse struct {
	Success   bool        `json:"success"`
	ErrorText string      `json:"error,omitempty"`
	User      *UserDetail `json:"user,omitempty"`
}

type UserKickResponse struct {
	Success   bool   `json:"success"`
	ErrorText string `json:"error,omitempty"`
}

type UserListResponse struct {
	Success   bool          `json:"success"`
	ErrorText string        `json:"error,omitempty"`
	Users     []UserSummary `json:"users,omitempty"`
}

// UserMessage is a direct message, delivered to every session of both the
// recipient and the sender.
type UserMessage struct {
	FromUsername string `json:"from_username"`
	FromAdmin    bool   `json:"from_admin"`
	ToUsername   string `json:"to_username"`
	Message      string `json:"message"`
}

type UserMessageResponse struct {
	Success   bool   `json:"success"`
	ErrorText string `json:"error,omitempty"`
}

type UserUpdateResponse struct {
	Success   bool   `json:"success"`
	ErrorText string `json:"error,omitempty"`
}

type ServerInfoUpdated struct {
	ServerInfo ServerInfo `json:"server_info"`
}

type ServerInfoUpdateResponse struct {
	Success   bool   `json:"success"`
	ErrorText string `json:"error,omitempty"`
}

// ErrorFrame surfaces a protocol error. Kind and params let catalog-aware
// clients re-render; message carries the server-side localization for the
// rest.
type ErrorFrame struct {
	Kind    string            `json:"kind"`
	Params  map[string]string `json:"params,omitempty"`
	Message string            `json:"message"`
	Command string            `json:"command,omitempty"`
}

func (HandshakeResponse) ServerType() string        { return "HandshakeResponse" }
func (LoginResponse) ServerType() string            { return "LoginResponse" }
func (ChatMessage) ServerType() string              { return "ChatMessage" }
func (ChatTopic) ServerType() string                { return "ChatTopic" }
func (ChatTopicResponse) ServerType() string        { return "ChatTopicResponse" }
func (ChatTopicUpdateResponse) ServerType() string  { return "ChatTopicUpdateResponse" }
func (ServerBroadcast) ServerType() string          { return "ServerBroadcast" }
func (UserBroadcastResponse) ServerType() string    { return "UserBroadcastResponse" }
func (UserConnected) ServerType() string            { return "UserConnected" }
func (UserDisconnected) ServerType() string         { return "UserDisconnected" }
func (UserUpdated) ServerType() string              { return "UserUpdated" }
func (PermissionsUpdated) ServerType() string       { return "PermissionsUpdated" }
func (Kicked) ServerType() string                   { return "Kicked" }
func (Disconnected) ServerType() string             { return "Disconnected" }
func (UserCreateResponse) ServerType() string       { return "UserCreateResponse" }
func (UserDeleteResponse) ServerType() string       { return "UserDeleteResponse" }
func (UserEditResponse) ServerType() string         { return "UserEditResponse" }
func (UserInfoResponse) ServerType() string         { return "UserInfoResponse" }
func (UserKickResponse) ServerType() string         { return "UserKickResponse" }
func (UserListResponse) ServerType() string         { return "UserListResponse" }
func (UserMessage) ServerType() string              { return "UserMessage" }
func (UserMessageResponse) ServerType() string      { return "UserMessageResponse" }
func (UserUpdateResponse) ServerType() string       { return "UserUpdateResponse" }
func (ServerInfoUpdated) ServerType() string        { return "ServerInfoUpdated" }
func (ServerInfoUpdateResponse) ServerType() string { return "ServerInfoUpdateResponse" }
func (ErrorFrame) ServerType() string               { return "Error" }

// EncodeServerMessage serializes a frame with its discriminator spliced in.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	return encodeTagged(msg.ServerType(), msg)
}

// DecodeServerMessage parses a server frame. Used by tests and client-side
// tooling.
func DecodeServerMessage(line []byte) (ServerMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	decode := func(dst ServerMessage) (ServerMessage, error) {
		if err := json.Unmarshal(line, dst); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", env.Type, err)
		}
		return dst, nil
	}
	switch env.Type {
	case "HandshakeResponse":
		m := &HandshakeResponse{}
		return decode(m)
	case "LoginResponse":
		m := &LoginResponse{}
		return decode(m)
	case "ChatMessage":
		m := &ChatMessage{}
		return decode(m)
	case "ChatTopic":
		m := &ChatTopic{}
		return decode(m)
	case "ChatTopicResponse":
		m := &ChatTopicResponse{}
		return decode(m)
	case "ChatTopicUpdateResponse":
		m := &ChatTopicUpdateResponse{}
		return decode(m)
	case "ServerBroadcast":
		m := &ServerBroadcast{}
		return decode(m)
	case "UserBroadcastResponse":
		m := &UserBroadcastResponse{}
		return decode(m)
	case "UserConnected":
		m := &UserConnected{}
		return decode(m)
	case "UserDisconnected":
		m := &UserDisconnected{}
		return decode(m)
	case "UserUpdated":
		m := &UserUpdated{}
		return decode(m)
	case "PermissionsUpdated":
		m := &PermissionsUpdated{}
		return decode(m)
	case "Kicked":
		m := &Kicked{}
		return decode(m)
	case "Disconnected":
		m := &Disconnected{}
		return decode(m)
	case "UserCreateResponse":
		m := &UserCreateResponse{}
		return decode(m)
	case "UserDeleteResponse":
		m := &UserDeleteResponse{}
		return decode(m)
	case "UserEditResponse":
		m := &UserEditResponse{}
		return decode(m)
	case "UserInfoResponse":
		m := &UserInfoResponse{}
		return decode(m)
	case "UserKickResponse":
		m := &UserKickResponse{}
		return decode(m)
	case "UserListResponse":
		m := &UserListResponse{}
		return decode(m)
	case "UserMessage":
		m := &UserMessage{}
		return decode(m)
	case "UserMessageResponse":
		m := &UserMessageResponse{}
		return decode(m)
	case "UserUpdateResponse":
		m := &UserUpdateResponse{}
		return decode(m)
	case "ServerInfoUpdated":
		m := &ServerInfoUpdated{}
		return decode(m)
	case "ServerInfoUpdateResponse":
		m := &ServerInfoUpdateResponse{}
		return decode(m)
	case "Error":
		m := &ErrorFrame{}
		return decode(m)
	}
	return nil, fmt.Errorf("unknown message type %q", env.Type)
}
