package service

import (
	"context"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/inbound"
	"github.com/zquestz/nexus/domain/port/outbound"
	"github.com/zquestz/nexus/domain/validation"
)

// ServerService reads and mutates the persisted server settings. Mutations
// are admin-only, enforced by the dispatcher; this service validates values
// and broadcasts the updated header to connected clients.
type ServerService struct {
	config    outbound.ConfigRepository
	chatState outbound.ChatStateRepository
	router    inbound.EventRouter
	logger    outbound.Logger
}

func NewServerService(
	config outbound.ConfigRepository,
	chatState outbound.ChatStateRepository,
	router inbound.EventRouter,
	logger outbound.Logger,
) *ServerService {
	return &ServerService{
		config:    config,
		chatState: chatState,
		router:    router,
		logger:    logger,
	}
}

// Info assembles the server header. The per-IP connection limit is included
// only for admin requesters.
func (s *ServerService) Info(ctx context.Context, forAdmin bool) (*model.ServerInfo, error) {
	name, err := s.config.ServerName(ctx)
	if err != nil {
		return nil, err
	}
	description, err := s.config.ServerDescription(ctx)
	if err != nil {
		return nil, err
	}
	image, err := s.config.ServerImage(ctx)
	if err != nil {
		return nil, err
	}
	chatEnabled, err := s.config.ChatEnabled(ctx)
	if err != nil {
		return nil, err
	}
	topic, setBy, err := s.chatState.Topic(ctx)
	if err != nil {
		return nil, err
	}

	info := &model.ServerInfo{
		Name:           name,
		Description:    description,
		Version:        model.ServerVersion,
		ChatTopic:      topic,
		ChatTopicSetBy: setBy,
		ChatEnabled:    chatEnabled,
		Image:          image,
	}
	if forAdmin {
		limit, err := s.config.MaxConnectionsPerIP(ctx)
		if err != nil {
			return nil, err
		}
		info.MaxConnectionsPerIP = &limit
	}
	return info, nil
}

// Update applies the provided fields, leaving absent ones untouched, then
// pushes the refreshed header to every session. Admins get the variant
// carrying the connection limit.
func (s *ServerService) Update(ctx context.Context, actor *model.Session, req model.ServerInfoUpdate) *model.Error {
	if req.Name != nil {
		if verr := validation.ServerName(*req.Name); verr != nil {
			return verr
		}
	}
	if req.Description != nil {
		if verr := validation.ServerDescription(*req.Description); verr != nil {
			return verr
		}
	}
	if req.Image != nil {
		if verr := validation.ServerImage(*req.Image); verr != nil {
			return verr
		}
	}
	if req.MaxConnectionsPerIP != nil && *req.MaxConnectionsPerIP == 0 {
		return model.NewError(model.ErrKindMaxConnectionsInvalid)
	}

	if req.Name != nil {
		if err := s.config.SetServerName(ctx, *req.Name); err != nil {
			s.logger.Error("Failed to persist server name", "error", err)
			return model.NewError(model.ErrKindDatabase)
		}
	}
	if req.Description != nil {
		if err := s.config.SetServerDescription(ctx, *req.Description); err != nil {
			s.logger.Error("Failed to persist server description", "error", err)
			return model.NewError(model.ErrKindDatabase)
		}
	}
	if req.Image != nil {
		if err := s.config.SetServerImage(ctx, *req.Image); err != nil {
			s.logger.Error("Failed to persist server image", "error", err)
			return model.NewError(model.ErrKindDatabase)
		}
	}
	if req.MaxConnectionsPerIP != nil {
		if err := s.config.SetMaxConnectionsPerIP(ctx, *req.MaxConnectionsPerIP); err != nil {
			s.logger.Error("Failed to persist connection limit", "error", err)
			return model.NewError(model.ErrKindDatabase)
		}
	}
	if req.ChatEnabled != nil {
		if err := s.config.SetChatEnabled(ctx, *req.ChatEnabled); err != nil {
			s.logger.Error("Failed to persist chat_enabled flag", "error", err)
			return model.NewError(model.ErrKindDatabase)
		}
	}

	s.logger.Info("Server settings updated", "username", actor.Username())
	s.publishInfo(ctx)
	return nil
}

func (s *ServerService) ChatEnabled(ctx context.Context) bool {
	enabled, err := s.config.ChatEnabled(ctx)
	if err != nil {
		s.logger.Error("Failed to read chat_enabled flag", "error", err)
		return false
	}
	return enabled
}

func (s *ServerService) publishInfo(ctx context.Context) {
	public, err := s.Info(ctx, false)
	if err != nil {
		s.logger.Error("Failed to assemble server info", "error", err)
		return
	}
	admin, err := s.Info(ctx, true)
	if err != nil {
		s.logger.Error("Failed to assemble admin server info", "error", err)
		return
	}

	s.router.Publish(inbound.Event{
		Frame:    model.ServerInfoUpdated{ServerInfo: *public},
		Audience: inbound.AudienceNonAdmins,
	})
	s.router.Publish(inbound.Event{
		Frame:    model.ServerInfoUpdated{ServerInfo: *admin},
		Audience: inbound.AudienceAdmins,
	})
}
