package outbound

import (
	"context"
	"errors"

	"github.com/zquestz/nexus/domain/model"
)

// Sentinel errors shared by storage adapters. Services translate them into
// protocol error kinds.
var (
	ErrNotFound        = errors.New("not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrLastAdminDemote = errors.New("would demote the last admin")
	ErrLastAdminOff    = errors.New("would disable the last enabled admin")
	ErrLastAdminDelete = errors.New("would delete the last admin")
	ErrUnknownPerm     = errors.New("permission outside the closed set")
)

// UserRepository is the persistent user and permission store. All multi-row
// writes are single transactions; last-admin protections are evaluated
// inside the same transaction as the mutation.
type UserRepository interface {
	CountUsers(ctx context.Context) (int64, error)

	// GetUserByUsername resolves case-insensitively and returns the stored
	// casing. ErrNotFound when absent.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	// CreateUser inserts the user and its permission rows in one
	// transaction. Fills ID and CreatedAt. ErrUsernameTaken on a
	// case-insensitive collision, ErrUnknownPerm for names outside the
	// closed set.
	CreateUser(ctx context.Context, user *model.User, perms []model.Permission) error

	// UpdateUser applies the requested changes atomically. Returns
	// ErrLastAdminDemote / ErrLastAdminOff when the change would leave no
	// (enabled) admin, ErrUsernameTaken on rename collision.
	UpdateUser(ctx context.Context, id int64, changes model.UserChanges) error

	// DeleteUser removes the user; permission rows cascade. Returns
	// ErrLastAdminDelete when the user is the only admin.
	DeleteUser(ctx context.Context, id int64) error

	Permissions(ctx context.Context, userID int64) ([]model.Permission, error)
}

// ConfigRepository reads and writes scalar server settings in the config
// table. Readers fall back to defaults when a key is absent so new settings
// never require schema changes.
type ConfigRepository interface {
	ServerName(ctx context.Context) (string, error)
	SetServerName(ctx context.Context, name string) error
	ServerDescription(ctx context.Context) (string, error)
	SetServerDescription(ctx context.Context, description string) error
	ServerImage(ctx context.Context) (string, error)
	SetServerImage(ctx context.Context, image string) error
	MaxConnectionsPerIP(ctx context.Context) (uint32, error)
	SetMaxConnectionsPerIP(ctx context.Context, limit uint32) error
	ChatEnabled(ctx context.Context) (bool, error)
	SetChatEnabled(ctx context.Context, enabled bool) error
}

// ChatStateRepository persists live chat state, kept separate from server
// configuration.
type ChatStateRepository interface {
	Topic(ctx context.Context) (topic, setBy string, err error)
	SetTopic(ctx context.Context, topic, setBy string) error
}

// Localizer renders a protocol error kind into a human-readable message in
// the requested locale, falling back to English for missing entries.
type Localizer interface {
	Localize(locale string, kind model.ErrorKind, params map[string]string) string
}

// PasswordHasher hashes and verifies login passwords. Hashes are
// self-describing encoded strings.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// PresenceRegistry is the authoritative in-memory index of Active sessions.
// Registration is atomic across all indexes.
type PresenceRegistry interface {
	NextSessionID() uint32

	Register(s *model.Session)
	// Unregister removes the session from every index; nil if unknown.
	Unregister(sessionID uint32) *model.Session

	BySessionID(id uint32) (*model.Session, bool)
	ByUserID(userID int64) []*model.Session
	// ByUsername matches case-insensitively.
	ByUsername(username string) []*model.Session
	Sessions() []*model.Session
	UserSessionCount(userID int64) int

	// Rename rebinds the username index for a user's live sessions after an
	// admin rename.
	Rename(userID int64, username string)

	// Per-IP connection gate, counting pre-Active and Active connections.
	AcquireIP(ip string, max uint32) bool
	ReleaseIP(ip string)
}
