package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The wire protocol is newline-delimited UTF-8 JSON over TLS. Every frame is
// one object with a "type" discriminator. Client frames decode through
// DecodeClientMessage; server frames encode through EncodeServerMessage.

// ClientMessage is a request frame sent by a client.
type ClientMessage interface {
	ClientType() string
}

type Handshake struct {
	Version  string   `json:"version"`
	Features []string `json:"features,omitempty"`
	Locale   string   `json:"locale,omitempty"`
}

type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

type ChatSend struct {
	Message string `json:"message"`
}

// ChatTopicUpdate sets the topic; an empty topic clears it.
type ChatTopicUpdate struct {
	Topic string `json:"topic"`
}

type ChatTopicGet struct{}

type UserBroadcast struct {
	Message string `json:"message"`
}

type UserCreate struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	IsAdmin     bool     `json:"is_admin"`
	Enabled     bool     `json:"enabled"`
	Permissions []string `json:"permissions"`
}

type UserDelete struct {
	Username string `json:"username"`
}

// UserEdit fetches another account's details for an edit form.
type UserEdit struct {
	Username string `json:"username"`
}

type UserInfoRequest struct {
	Username string `json:"username"`
}

type UserKick struct {
	Username string `json:"username"`
}

type UserList struct{}

type UserMessageSend struct {
	ToUsername string `json:"to_username"`
	Message    string `json:"message"`
}

type UserUpdateRequest struct {
	Username             string    `json:"username"`
	RequestedUsername    *string   `json:"requested_username,omitempty"`
	RequestedPassword    *string   `json:"requested_password,omitempty"`
	RequestedIsAdmin     *bool     `json:"requested_is_admin,omitempty"`
	RequestedEnabled     *bool     `json:"requested_enabled,omitempty"`
	RequestedPermissions *[]string `json:"requested_permissions,omitempty"`
}

type ServerInfoUpdate struct {
	Name                *string `json:"name,omitempty"`
	Description         *string `json:"description,omitempty"`
	Image               *string `json:"image,omitempty"`
	MaxConnectionsPerIP *uint32 `json:"max_connections_per_ip,omitempty"`
	ChatEnabled         *bool   `json:"chat_enabled,omitempty"`
}

func (Handshake) ClientType() string         { return "Handshake" }
func (Login) ClientType() string             { return "Login" }
func (ChatSend) ClientType() string          { return "ChatSend" }
func (ChatTopicUpdate) ClientType() string   { return "ChatTopicUpdate" }
func (ChatTopicGet) ClientType() string      { return "ChatTopicGet" }
func (UserBroadcast) ClientType() string     { return "UserBroadcast" }
func (UserCreate) ClientType() string        { return "UserCreate" }
func (UserDelete) ClientType() string        { return "UserDelete" }
func (UserEdit) ClientType() string          { return "UserEdit" }
func (UserInfoRequest) ClientType() string   { return "UserInfo" }
func (UserKick) ClientType() string          { return "UserKick" }
func (UserList) ClientType() string          { return "UserList" }
func (UserMessageSend) ClientType() string   { return "UserMessage" }
func (UserUpdateRequest) ClientType() string { return "UserUpdate" }
func (ServerInfoUpdate) ClientType() string  { return "ServerInfoUpdate" }

// DecodeClientMessage parses one frame. The discriminator is resolved first
// so per-type size ceilings apply before the payload is fully parsed.
func DecodeClientMessage(line []byte) (ClientMessage, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	limit, known := MaxPayloadForType(env.Type)
	if !known {
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
	if limit > 0 && int64(len(line)) > limit {
		return nil, fmt.Errorf("frame exceeds %d byte limit for %s", limit, env.Type)
	}

	var (
		msg ClientMessage
		err error
	)
	switch env.Type {
	case "Handshake":
		msg, err = decodeAs[Handshake](line)
	case "Login":
		msg, err = decodeAs[Login](line)
	case "ChatSend":
		msg, err = decodeAs[ChatSend](line)
	case "ChatTopicUpdate":
		msg, err = decodeAs[ChatTopicUpdate](line)
	case "ChatTopicGet":
		msg, err = decodeAs[ChatTopicGet](line)
	case "UserBroadcast":
		msg, err = decodeAs[UserBroadcast](line)
	case "UserCreate":
		msg, err = decodeAs[UserCreate](line)
	case "UserDelete":
		msg, err = decodeAs[UserDelete](line)
	case "UserEdit":
		msg, err = decodeAs[UserEdit](line)
	case "UserInfo":
		msg, err = decodeAs[UserInfoRequest](line)
	case "UserKick":
		msg, err = decodeAs[UserKick](line)
	case "UserList":
		msg, err = decodeAs[UserList](line)
	case "UserMessage":
		msg, err = decodeAs[UserMessageSend](line)
	case "UserUpdate":
		msg, err = decodeAs[UserUpdateRequest](line)
	case "ServerInfoUpdate":
		msg, err = decodeAs[ServerInfoUpdate](line)
	default:
		// Server-to-client types are known to the limits table but are not
		// valid requests.
		return nil, fmt.Errorf("unexpected message type %q from client", env.Type)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeAs[T ClientMessage](line []byte) (ClientMessage, error) {
	var m T
	dec := json.NewDecoder(bytes.NewReader(line))
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("malformed %s frame: %w", m.ClientType(), err)
	}
	return m, nil
}

// EncodeClientMessage serializes a request frame with its discriminator.
// Used by tests and by the WebSocket bridge.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	return encodeTagged(msg.ClientType(), msg)
}

func encodeTagged(typ string, msg any) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(typ)+12)
	out = append(out, `{"type":"`...)
	out = append(out, typ...)
	out = append(out, '"')
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
