package model

import (
	"sync"
	"time"
)

// SessionState tracks the protocol lifecycle of one connection. A session
// moves AwaitHandshake -> AwaitLogin -> Active exactly once and ends in
// Closing.
type SessionState int32

const (
	StateAwaitHandshake SessionState = iota
	StateAwaitLogin
	StateActive
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitHandshake:
		return "await-handshake"
	case StateAwaitLogin:
		return "await-login"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Outbound is the transport-side delivery point for server frames. The
// router never blocks on it: TryEnqueue returning false means the bounded
// queue is full and the session must be dropped.
type Outbound interface {
	TryEnqueue(msg ServerMessage) bool
	Shutdown()
}

// Session is the live state bound to one connection. Mutable auth fields are
// guarded so the router and admin handlers can read them while the owning
// task serves requests.
type Session struct {
	ID          uint32
	RemoteAddr  string
	RemoteIP    string
	ConnectedAt time.Time

	mu            sync.RWMutex
	state         SessionState
	userID        int64
	username      string
	isAdmin       bool
	perms         PermissionSet
	locale        string
	features      []string
	clientVersion string
	avatar        string

	out Outbound
}

func NewSession(id uint32, remoteAddr, remoteIP string, out Outbound) *Session {
	return &Session{
		ID:          id,
		RemoteAddr:  remoteAddr,
		RemoteIP:    remoteIP,
		ConnectedAt: time.Now(),
		state:       StateAwaitHandshake,
		locale:      "en",
		out:         out,
	}
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// CompleteHandshake records the negotiated client parameters and advances to
// AwaitLogin.
func (s *Session) CompleteHandshake(version, locale string, features []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientVersion = version
	if locale != "" {
		s.locale = locale
	}
	s.features = append([]string(nil), features...)
	s.state = StateAwaitLogin
}

// Activate binds the authenticated user to the session and advances to
// Active. The permission set is a snapshot; admins bypass it entirely.
func (s *Session) Activate(user *User, perms []Permission, avatar string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = user.ID
	s.username = user.Username
	s.isAdmin = user.IsAdmin
	s.perms = NewPermissionSet(perms...)
	s.avatar = avatar
	s.state = StateActive
}

func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAdmin
}

func (s *Session) Locale() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locale
}

func (s *Session) Features() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.features...)
}

func (s *Session) Avatar() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avatar
}

// HasPermission evaluates the cached grant set; admin status short-circuits.
func (s *Session) HasPermission(p Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAdmin || s.perms.Has(p)
}

// Permissions returns the cached grants in stable order.
func (s *Session) Permissions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perms.Strings()
}

// UpdateAuth refreshes the cached admin flag and grants after an admin edits
// this user. Takes effect on the session's next permission check.
func (s *Session) UpdateAuth(isAdmin bool, perms []Permission) {
	s.mu.Lock()
	s.isAdmin = isAdmin
	s.perms = NewPermissionSet(perms...)
	s.mu.Unlock()
}

// Rename updates the cached username after an admin renames this user.
func (s *Session) Rename(username string) {
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
}

// TryEnqueue forwards a frame to the transport queue without blocking.
func (s *Session) TryEnqueue(msg ServerMessage) bool {
	return s.out.TryEnqueue(msg)
}

// Shutdown asks the owning transport task to close the connection.
func (s *Session) Shutdown() {
	s.out.Shutdown()
}
