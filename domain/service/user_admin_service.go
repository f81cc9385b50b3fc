package service

import (
	"context"
	"errors"
	"sort"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/inbound"
	"github.com/zquestz/nexus/domain/port/outbound"
	"github.com/zquestz/nexus/domain/validation"
)

// UserAdminService implements account management and moderation. The
// dispatcher enforces each operation's permission before calling in; this
// service enforces the invariants that depend on target or actor state, and
// the store enforces last-admin protection atomically.
type UserAdminService struct {
	users     outbound.UserRepository
	hasher    outbound.PasswordHasher
	presence  outbound.PresenceRegistry
	router    inbound.EventRouter
	server    inbound.ServerService
	localizer outbound.Localizer
	logger    outbound.Logger
}

func NewUserAdminService(
	users outbound.UserRepository,
	hasher outbound.PasswordHasher,
	presence outbound.PresenceRegistry,
	router inbound.EventRouter,
	server inbound.ServerService,
	localizer outbound.Localizer,
	logger outbound.Logger,
) *UserAdminService {
	return &UserAdminService{
		users:     users,
		hasher:    hasher,
		presence:  presence,
		router:    router,
		server:    server,
		localizer: localizer,
		logger:    logger,
	}
}

func (s *UserAdminService) Create(ctx context.Context, actor *model.Session, req model.UserCreate) *model.Error {
	if verr := validation.Username(req.Username); verr != nil {
		return verr
	}
	if verr := validation.Password(req.Password); verr != nil {
		return verr
	}
	if verr := validation.PermissionNames(req.Permissions); verr != nil {
		return verr
	}
	perms, bad, ok := model.ParsePermissions(req.Permissions)
	if !ok {
		return model.NewErrorWith(model.ErrKindUnknownPermission, "permission", bad)
	}
	if !actor.IsAdmin() {
		if req.IsAdmin {
			return model.NewError(model.ErrKindAdminRequired)
		}
		if verr := delegatable(actor, perms); verr != nil {
			return verr
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error("Failed to hash password for new user", "error", err)
		return model.NewError(model.ErrKindDatabase)
	}
	user := &model.User{
		Username:     req.Username,
		PasswordHash: hash,
		IsAdmin:      req.IsAdmin,
		Enabled:      req.Enabled,
	}
	if err := s.users.CreateUser(ctx, user, perms); err != nil {
		switch {
		case errors.Is(err, outbound.ErrUsernameTaken):
			return model.NewErrorWith(model.ErrKindUsernameExists, "username", req.Username)
		case errors.Is(err, outbound.ErrUnknownPerm):
			return model.NewError(model.ErrKindUnknownPermission)
		}
		s.logger.Error("Failed to create user", "username", req.Username, "error", err)
		return model.NewError(model.ErrKindDatabase)
	}

	s.logger.Info("User created",
		"userID", user.ID, "username", user.Username,
		"isAdmin", user.IsAdmin, "createdBy", actor.Username())
	return nil
}

func (s *UserAdminService) Delete(ctx context.Context, actor *model.Session, username string) *model.Error {
	if verr := validation.Username(username); verr != nil {
		return verr
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, outbound.ErrNotFound) {
		return model.NewErrorWith(model.ErrKindUserNotFound, "username", username)
	}
	if err != nil {
		s.logger.Error("Failed to load user for delete", "username", username, "error", err)
		return model.NewError(model.ErrKindDatabase)
	}
	if user.ID == actor.UserID() {
		return model.NewError(model.ErrKindCannotDeleteSelf)
	}

	if err := s.users.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, outbound.ErrLastAdminDelete) {
			return model.NewError(model.ErrKindCannotDeleteLastAdmin)
		}
		s.logger.Error("Failed to delete user", "userID", user.ID, "error", err)
		return model.NewError(model.ErrKindDatabase)
	}

	s.logger.Info("User deleted",
		"userID", user.ID, "username", user.Username, "deletedBy", actor.Username())
	s.evictSessions(user.ID, model.ErrKindAccountDeleted)
	return nil
}

func (s *UserAdminService) Edit(ctx context.Context, actor *model.Session, username string) (*model.UserEditResponse, *model.Error) {
	if verr := validation.Username(username); verr != nil {
		return nil, verr
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, outbound.ErrNotFound) {
		return nil, model.NewErrorWith(model.ErrKindUserNotFound, "username", username)
	}
	if err != nil {
		s.logger.Error("Failed to load user for edit", "username", username, "error", err)
		return nil, model.NewError(model.ErrKindDatabase)
	}
	perms, err := s.users.Permissions(ctx, user.ID)
	if err != nil {
		s.logger.Error("Failed to load permissions for edit", "userID", user.ID, "error", err)
		return nil, model.NewError(model.ErrKindDatabase)
	}

	isAdmin, enabled := user.IsAdmin, user.Enabled
	return &model.UserEditResponse{
		Success:     true,
		Username:    user.Username,
		IsAdmin:     &isAdmin,
		Enabled:     &enabled,
		Permissions: model.NewPermissionSet(perms...).Strings(),
	}, nil
}

// Update applies requested account changes, then reconciles the target's
// live sessions: refreshed grants, a rename in the presence index, or an
// eviction when the account was disabled.
func (s *UserAdminService) Update(ctx context.Context, actor *model.Session, req model.UserUpdateRequest) *model.Error {
	if verr := validation.Username(req.Username); verr != nil {
		return verr
	}
	target, err := s.users.GetUserByUsername(ctx, req.Username)
	if errors.Is(err, outbound.ErrNotFound) {
		return model.NewErrorWith(model.ErrKindUserNotFound, "username", req.Username)
	}
	if err != nil {
		s.logger.Error("Failed to load user for update", "username", req.Username, "error", err)
		return model.NewError(model.ErrKindDatabase)
	}
	if target.ID == actor.UserID() {
		return model.NewError(model.ErrKindCannotEditSelf)
	}
	if !actor.IsAdmin() && (req.RequestedIsAdmin != nil || req.RequestedEnabled != nil) {
		return model.NewError(model.ErrKindAdminRequired)
	}

	changes, verr := s.buildChanges(req)
	if verr != nil {
		return verr
	}
	if !actor.IsAdmin() && changes.SetPermissions {
		if verr := delegatable(actor, changes.Permissions); verr != nil {
			return verr
		}
	}

	if err := s.users.UpdateUser(ctx, target.ID, *changes); err != nil {
		switch {
		case errors.Is(err, outbound.ErrLastAdminDemote):
			return model.NewError(model.ErrKindCannotDemoteLastAdmin)
		case errors.Is(err, outbound.ErrLastAdminOff):
			return model.NewError(model.ErrKindCannotDisableLastAdmin)
		case errors.Is(err, outbound.ErrUsernameTaken):
			return model.NewErrorWith(model.ErrKindUsernameExists, "username", *changes.Username)
		case errors.Is(err, outbound.ErrUnknownPerm):
			return model.NewError(model.ErrKindUnknownPermission)
		}
		s.logger.Error("Failed to update user", "userID", target.ID, "error", err)
		return model.NewError(model.ErrKindDatabase)
	}

	updated, err := s.users.GetUserByID(ctx, target.ID)
	if err != nil {
		s.logger.Error("Failed to reload user after update", "userID", target.ID, "error", err)
		return model.NewError(model.ErrKindDatabase)
	}
	perms, err := s.users.Permissions(ctx, target.ID)
	if err != nil {
		s.logger.Error("Failed to reload permissions after update", "userID", target.ID, "error", err)
		return model.NewError(model.ErrKindDatabase)
	}

	s.logger.Info("User updated",
		"userID", target.ID, "username", updated.Username, "updatedBy", actor.Username())
	s.reconcileSessions(ctx, target.Username, updated, perms)
	return nil
}

func (s *UserAdminService) Kick(ctx context.Context, actor *model.Session, username string) *model.Error {
	if verr := validation.Username(username); verr != nil {
		return verr
	}
	targets := s.presence.ByUsername(username)
	if len(targets) == 0 {
		return model.NewErrorWith(model.ErrKindUserNotOnline, "username", username)
	}
	target := targets[0]
	if target.UserID() == actor.UserID() {
		return model.NewError(model.ErrKindCannotKickSelf)
	}
	if target.IsAdmin() {
		return model.NewError(model.ErrKindCannotKickAdmin)
	}

	s.logger.Info("User kicked",
		"userID", target.UserID(), "username", target.Username(), "kickedBy", actor.Username())
	for _, sess := range s.presence.ByUserID(target.UserID()) {
		sess.TryEnqueue(model.Kicked{By: actor.Username()})
		sess.Shutdown()
	}
	return nil
}

func (s *UserAdminService) Info(ctx context.Context, actor *model.Session, username string) (*model.UserDetail, *model.Error) {
	if verr := validation.Username(username); verr != nil {
		return nil, verr
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, outbound.ErrNotFound) {
		return nil, model.NewErrorWith(model.ErrKindUserNotFound, "username", username)
	}
	if err != nil {
		s.logger.Error("Failed to load user for info", "username", username, "error", err)
		return nil, model.NewError(model.ErrKindDatabase)
	}
	sessions := s.presence.ByUserID(user.ID)
	if len(sessions) == 0 {
		return nil, model.NewErrorWith(model.ErrKindUserNotOnline, "username", username)
	}
	sortSessions(sessions)
	first := sessions[0]

	detail := &model.UserDetail{
		Username:   user.Username,
		LoginTime:  first.ConnectedAt.Unix(),
		SessionIDs: sessionIDs(sessions),
		Features:   first.Features(),
		CreatedAt:  user.CreatedAt,
		Locale:     first.Locale(),
		Avatar:     first.Avatar(),
	}
	if actor.IsAdmin() {
		isAdmin := user.IsAdmin
		detail.IsAdmin = &isAdmin
		addrs := make([]string, 0, len(sessions))
		for _, sess := range sessions {
			addrs = append(addrs, sess.RemoteAddr)
		}
		detail.Addresses = addrs
	}
	return detail, nil
}

func (s *UserAdminService) List(ctx context.Context, actor *model.Session) ([]model.UserSummary, *model.Error) {
	byUser := make(map[int64][]*model.Session)
	for _, sess := range s.presence.Sessions() {
		if sess.State() != model.StateActive {
			continue
		}
		byUser[sess.UserID()] = append(byUser[sess.UserID()], sess)
	}

	users := make([]model.UserSummary, 0, len(byUser))
	for _, sessions := range byUser {
		users = append(users, summarize(sessions))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *UserAdminService) buildChanges(req model.UserUpdateRequest) (*model.UserChanges, *model.Error) {
	changes := &model.UserChanges{}
	if req.RequestedUsername != nil {
		if verr := validation.Username(*req.RequestedUsername); verr != nil {
			return nil, verr
		}
		changes.Username = req.RequestedUsername
	}
	if req.RequestedPassword != nil {
		if verr := validation.Password(*req.RequestedPassword); verr != nil {
			return nil, verr
		}
		hash, err := s.hasher.Hash(*req.RequestedPassword)
		if err != nil {
			s.logger.Error("Failed to hash replacement password", "error", err)
			return nil, model.NewError(model.ErrKindDatabase)
		}
		changes.Password = &hash
	}
	changes.IsAdmin = req.RequestedIsAdmin
	changes.Enabled = req.RequestedEnabled
	if req.RequestedPermissions != nil {
		if verr := validation.PermissionNames(*req.RequestedPermissions); verr != nil {
			return nil, verr
		}
		perms, bad, ok := model.ParsePermissions(*req.RequestedPermissions)
		if !ok {
			return nil, model.NewErrorWith(model.ErrKindUnknownPermission, "permission", bad)
		}
		changes.Permissions = perms
		changes.SetPermissions = true
	}
	return changes, nil
}

// delegatable rejects any grant a non-admin actor does not hold itself.
func delegatable(actor *model.Session, perms []model.Permission) *model.Error {
	for _, p := range perms {
		if !actor.HasPermission(p) {
			return model.NewErrorWith(model.ErrKindPermissionDenied, "permission", string(p))
		}
	}
	return nil
}

// reconcileSessions propagates an account change onto the target's live
// sessions and announces visible changes to other users.
func (s *UserAdminService) reconcileSessions(ctx context.Context, previousUsername string, updated *model.User, perms []model.Permission) {
	live := s.presence.ByUserID(updated.ID)
	if len(live) == 0 {
		return
	}

	if !updated.Enabled {
		s.evictSessions(updated.ID, model.ErrKindAccountDisabledByAdmin)
		return
	}

	renamed := previousUsername != updated.Username
	wasAdmin := live[0].IsAdmin()
	if renamed {
		s.presence.Rename(updated.ID, updated.Username)
		for _, sess := range live {
			sess.Rename(updated.Username)
		}
	}
	for _, sess := range live {
		sess.UpdateAuth(updated.IsAdmin, perms)
	}

	info, err := s.server.Info(ctx, updated.IsAdmin)
	if err != nil {
		s.logger.Error("Failed to assemble server info for grant refresh", "error", err)
		info = nil
	}
	s.router.Publish(inbound.Event{
		Frame: model.PermissionsUpdated{
			IsAdmin:     updated.IsAdmin,
			Permissions: model.NewPermissionSet(perms...).Strings(),
			ServerInfo:  info,
		},
		UserIDs: []int64{updated.ID},
	})

	if renamed || wasAdmin != updated.IsAdmin {
		sortSessions(live)
		s.router.Publish(inbound.Event{
			Frame: model.UserUpdated{
				PreviousUsername: previousUsername,
				User:             summarize(live),
			},
			Require: model.PermUserList,
		})
	}
}

// evictSessions surfaces a fatal account error to every live session of the
// user and closes them.
func (s *UserAdminService) evictSessions(userID int64, kind model.ErrorKind) {
	for _, sess := range s.presence.ByUserID(userID) {
		sess.TryEnqueue(model.ErrorFrame{
			Kind:    string(kind),
			Message: s.localizer.Localize(sess.Locale(), kind, nil),
		})
		sess.Shutdown()
	}
}

func summarize(sessions []*model.Session) model.UserSummary {
	sortSessions(sessions)
	first := sessions[0]
	return model.UserSummary{
		Username:   first.Username(),
		LoginTime:  first.ConnectedAt.Unix(),
		IsAdmin:    first.IsAdmin(),
		SessionIDs: sessionIDs(sessions),
		Locale:     first.Locale(),
		Avatar:     first.Avatar(),
	}
}

func sortSessions(sessions []*model.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})
}

func sessionIDs(sessions []*model.Session) []uint32 {
	ids := make([]uint32, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	return ids
}
