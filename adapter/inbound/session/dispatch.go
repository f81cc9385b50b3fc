package session

import (
	"context"

	"github.com/Masterminds/semver/v3"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/inbound"
	"github.com/zquestz/nexus/domain/validation"
)

func (h *Handler) dispatchAwaitHandshake(ctx context.Context, msg model.ClientMessage) bool {
	hs, ok := msg.(model.Handshake)
	if !ok {
		h.sendError(model.NewError(model.ErrKindHandshakeRequired), msg.ClientType())
		return false
	}

	if verr := validation.Locale(hs.Locale); verr != nil {
		h.TryEnqueue(model.HandshakeResponse{Success: false, ErrorText: h.localize(verr)})
		return true
	}
	if verr := validation.Features(hs.Features); verr != nil {
		h.TryEnqueue(model.HandshakeResponse{Success: false, ErrorText: h.localize(verr)})
		return true
	}
	if verr := model.CheckClientVersion(hs.Version); verr != nil {
		h.TryEnqueue(model.HandshakeResponse{Success: false, ErrorText: h.localize(verr)})
		// an incompatible major can never proceed; lesser version problems
		// may retry the handshake
		return !verr.SessionFatal()
	}

	h.session.CompleteHandshake(hs.Version, hs.Locale, hs.Features)

	server := semver.MustParse(model.ServerVersion)
	h.TryEnqueue(model.HandshakeResponse{
		Success:       true,
		Version:       model.ServerVersion,
		ServerMajor:   server.Major(),
		ServerMinor:   server.Minor(),
		ServerFeature: h.serverFeatures(ctx),
	})
	h.svc.Logger.Debug("Handshake completed",
		"sessionID", h.session.ID, "clientVersion", hs.Version, "locale", h.session.Locale())
	return true
}

func (h *Handler) serverFeatures(ctx context.Context) []string {
	if h.svc.Server.ChatEnabled(ctx) {
		return []string{"chat"}
	}
	return nil
}

func (h *Handler) dispatchAwaitLogin(ctx context.Context, msg model.ClientMessage) bool {
	login, ok := msg.(model.Login)
	if !ok {
		if _, isHandshake := msg.(model.Handshake); isHandshake {
			h.sendError(model.NewError(model.ErrKindHandshakeAlreadyCompleted), msg.ClientType())
			return false
		}
		h.sendError(model.NewError(model.ErrKindNotLoggedIn), msg.ClientType())
		return false
	}

	if verr := validation.Avatar(login.Avatar); verr != nil {
		h.TryEnqueue(model.LoginResponse{Success: false, ErrorText: h.localize(verr)})
		return true
	}

	user, perms, perr := h.svc.Auth.Login(ctx, login.Username, login.Password)
	if perr != nil {
		h.TryEnqueue(model.LoginResponse{Success: false, ErrorText: h.localize(perr)})
		if perr.SessionFatal() {
			return false
		}
		// one more attempt on the same connection, then close
		h.failedLogins++
		return h.failedLogins < 2
	}

	firstJoin := h.svc.Presence.UserSessionCount(user.ID) == 0
	h.session.Activate(user, perms, login.Avatar)
	h.svc.Presence.Register(h.session)
	h.subscriptionID = h.svc.Router.Subscribe(h.session)

	info, err := h.svc.Server.Info(ctx, user.IsAdmin)
	if err != nil {
		h.svc.Logger.Error("Failed to assemble server info for login",
			"sessionID", h.session.ID, "error", err)
		info = nil
	}

	sessionID := h.session.ID
	userID := user.ID
	isAdmin := user.IsAdmin
	h.TryEnqueue(model.LoginResponse{
		Success:     true,
		SessionID:   &sessionID,
		UserID:      &userID,
		Username:    user.Username,
		IsAdmin:     &isAdmin,
		Permissions: h.session.Permissions(),
		ServerInfo:  info,
		Locale:      h.session.Locale(),
	})

	if firstJoin {
		h.svc.Router.Publish(inbound.Event{
			Frame: model.UserConnected{
				User: model.UserSummary{
					Username:   user.Username,
					LoginTime:  h.session.ConnectedAt.Unix(),
					IsAdmin:    user.IsAdmin,
					SessionIDs: []uint32{h.session.ID},
					Locale:     h.session.Locale(),
					Avatar:     h.session.Avatar(),
				},
			},
			Require:         model.PermUserList,
			ExcludeSessions: []uint32{h.session.ID},
		})
	}

	h.svc.Logger.Info("User logged in",
		"sessionID", h.session.ID, "userID", user.ID,
		"username", user.Username, "isAdmin", user.IsAdmin)
	return true
}

func (h *Handler) dispatchActive(ctx context.Context, msg model.ClientMessage) bool {
	switch req := msg.(type) {
	case model.Handshake:
		h.sendError(model.NewError(model.ErrKindHandshakeAlreadyCompleted), req.ClientType())
		return false
	case model.Login:
		h.sendError(model.NewError(model.ErrKindAlreadyLoggedIn), req.ClientType())
		return false

	case model.ChatSend:
		// delivery through the fan-out is the acknowledgement
		if perr := h.requirePerm(model.PermChatSend); perr != nil {
			h.sendError(perr, req.ClientType())
			return true
		}
		if perr := h.svc.Chat.Send(ctx, h.session, req.Message); perr != nil {
			h.sendError(perr, req.ClientType())
		}
		return true

	case model.ChatTopicGet:
		if perr := h.requirePerm(model.PermChatTopic); perr != nil {
			h.TryEnqueue(model.ChatTopicResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		topic, setBy, perr := h.svc.Chat.Topic(ctx)
		if perr != nil {
			h.TryEnqueue(model.ChatTopicResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.ChatTopicResponse{Success: true, Topic: topic, SetBy: setBy})
		return true

	case model.ChatTopicUpdate:
		if perr := h.requirePerm(model.PermChatTopicEdit); perr != nil {
			h.TryEnqueue(model.ChatTopicUpdateResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		if perr := h.svc.Chat.UpdateTopic(ctx, h.session, req.Topic); perr != nil {
			h.TryEnqueue(model.ChatTopicUpdateResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.ChatTopicUpdateResponse{Success: true})
		return true

	case model.UserBroadcast:
		if perr := h.requirePerm(model.PermUserBroadcast); perr != nil {
			h.TryEnqueue(model.UserBroadcastResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		if perr := h.svc.Chat.Broadcast(ctx, h.session, req.Message); perr != nil {
			h.TryEnqueue(model.UserBroadcastResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.UserBroadcastResponse{Success: true})
		return true

	case model.UserMessageSend:
		if perr := h.requirePerm(model.PermUserMessage); perr != nil {
			h.TryEnqueue(model.UserMessageResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		if perr := h.svc.Chat.Direct(ctx, h.session, req.ToUsername, req.Message); perr != nil {
			h.TryEnqueue(model.UserMessageResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.UserMessageResponse{Success: true})
		return true

	case model.UserList:
		if perr := h.requirePerm(model.PermUserList); perr != nil {
			h.TryEnqueue(model.UserListResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		users, perr := h.svc.Users.List(ctx, h.session)
		if perr != nil {
			h.TryEnqueue(model.UserListResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.UserListResponse{Success: true, Users: users})
		return true

	case model.UserInfoRequest:
		if perr := h.requirePerm(model.PermUserInfo); perr != nil {
			h.TryEnqueue(model.UserInfoResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		detail, perr := h.svc.Users.Info(ctx, h.session, req.Username)
		if perr != nil {
			h.TryEnqueue(model.UserInfoResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.UserInfoResponse{Success: true, User: detail})
		return true

	case model.UserCreate:
		if perr := h.requirePerm(model.PermUserCreate); perr != nil {
			h.TryEnqueue(model.UserCreateResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		if perr := h.svc.Users.Create(ctx, h.session, req); perr != nil {
			h.TryEnqueue(model.UserCreateResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.UserCreateResponse{Success: true})
		return true

	case model.UserDelete:
		if perr := h.requirePerm(model.PermUserDelete); perr != nil {
			h.TryEnqueue(model.UserDeleteResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		if perr := h.svc.Users.Delete(ctx, h.session, req.Username); perr != nil {
			h.TryEnqueue(model.UserDeleteResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.UserDeleteResponse{Success: true})
		return true

	case model.UserEdit:
		if perr := h.requirePerm(model.PermUserEdit); perr != nil {
			h.TryEnqueue(model.UserEditResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		resp, perr := h.svc.Users.Edit(ctx, h.session, req.Username)
		if perr != nil {
			h.TryEnqueue(model.UserEditResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(*resp)
		return true

	case model.UserUpdateRequest:
		if perr := h.requirePerm(model.PermUserEdit); perr != nil {
			h.TryEnqueue(model.UserUpdateResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		if perr := h.svc.Users.Update(ctx, h.session, req); perr != nil {
			h.TryEnqueue(model.UserUpdateResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.UserUpdateResponse{Success: true})
		return true

	case model.UserKick:
		if perr := h.requirePerm(model.PermUserKick); perr != nil {
			h.TryEnqueue(model.UserKickResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		if perr := h.svc.Users.Kick(ctx, h.session, req.Username); perr != nil {
			h.TryEnqueue(model.UserKickResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.UserKickResponse{Success: true})
		return true

	case model.ServerInfoUpdate:
		if !h.session.IsAdmin() {
			perr := model.NewError(model.ErrKindAdminRequired)
			h.TryEnqueue(model.ServerInfoUpdateResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		if perr := h.svc.Server.Update(ctx, h.session, req); perr != nil {
			h.TryEnqueue(model.ServerInfoUpdateResponse{Success: false, ErrorText: h.localize(perr)})
			return true
		}
		h.TryEnqueue(model.ServerInfoUpdateResponse{Success: true})
		return true
	}

	h.sendError(model.NewError(model.ErrKindInvalidMessageFormat), msg.ClientType())
	return false
}

func (h *Handler) requirePerm(p model.Permission) *model.Error {
	if h.session.HasPermission(p) {
		return nil
	}
	return model.NewErrorWith(model.ErrKindPermissionDenied, "permission", string(p))
}
