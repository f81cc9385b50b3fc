package inbound

import (
	"context"

	"github.com/zquestz/nexus/domain/model"
)

// AuthService authenticates login attempts against the user store.
type AuthService interface {
	// Login verifies credentials case-insensitively on the username and
	// returns the stored user with its permission grants. Failures are
	// deliberately collapsed into invalid-credentials except for disabled
	// accounts, which get their own kind.
	Login(ctx context.Context, username, password string) (*model.User, []model.Permission, *model.Error)
}

// ChatService covers room chat, direct messages, broadcasts, and the topic.
type ChatService interface {
	Send(ctx context.Context, sender *model.Session, message string) *model.Error
	Direct(ctx context.Context, sender *model.Session, toUsername, message string) *model.Error
	Broadcast(ctx context.Context, sender *model.Session, message string) *model.Error
	Topic(ctx context.Context) (topic, setBy string, err *model.Error)
	UpdateTopic(ctx context.Context, sender *model.Session, topic string) *model.Error
}

// UserAdminService covers account management and moderation operations.
// Callers enforce the operation's permission before invoking; the service
// re-checks the invariants that depend on target state.
type UserAdminService interface {
	Create(ctx context.Context, actor *model.Session, req model.UserCreate) *model.Error
	Delete(ctx context.Context, actor *model.Session, username string) *model.Error
	// Edit fetches the target's stored details for an edit form.
	Edit(ctx context.Context, actor *model.Session, username string) (*model.UserEditResponse, *model.Error)
	Update(ctx context.Context, actor *model.Session, req model.UserUpdateRequest) *model.Error
	Kick(ctx context.Context, actor *model.Session, username string) *model.Error
	Info(ctx context.Context, actor *model.Session, username string) (*model.UserDetail, *model.Error)
	List(ctx context.Context, actor *model.Session) ([]model.UserSummary, *model.Error)
}

// ServerService reads and mutates server-wide settings.
type ServerService interface {
	// Info assembles the server header block. Admin requesters additionally
	// receive the per-IP connection limit.
	Info(ctx context.Context, forAdmin bool) (*model.ServerInfo, error)
	Update(ctx context.Context, actor *model.Session, req model.ServerInfoUpdate) *model.Error
	ChatEnabled(ctx context.Context) bool
}
