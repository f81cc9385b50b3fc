package service

import (
	"context"
	"strings"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/inbound"
	"github.com/zquestz/nexus/domain/port/outbound"
	"github.com/zquestz/nexus/domain/validation"
)

// ChatService implements room chat, direct messages, broadcasts, and the
// chat topic. Delivery goes through the event router; persistence is limited
// to the topic, messages themselves are never stored.
type ChatService struct {
	chatState outbound.ChatStateRepository
	config    outbound.ConfigRepository
	presence  outbound.PresenceRegistry
	router    inbound.EventRouter
	logger    outbound.Logger
}

func NewChatService(
	chatState outbound.ChatStateRepository,
	config outbound.ConfigRepository,
	presence outbound.PresenceRegistry,
	router inbound.EventRouter,
	logger outbound.Logger,
) *ChatService {
	return &ChatService{
		chatState: chatState,
		config:    config,
		presence:  presence,
		router:    router,
		logger:    logger,
	}
}

// Send fans a chat line out to every session holding chat_receive. The
// sender hears its own message only through that same fan-out.
func (s *ChatService) Send(ctx context.Context, sender *model.Session, message string) *model.Error {
	if verr := validation.Message(message); verr != nil {
		return verr
	}
	if !s.chatEnabled(ctx) {
		return model.NewError(model.ErrKindChatFeatureDisabled)
	}

	s.router.Publish(inbound.Event{
		Frame: model.ChatMessage{
			SessionID: sender.ID,
			Username:  sender.Username(),
			Message:   message,
		},
		Require: model.PermChatReceive,
	})
	return nil
}

// Direct delivers a private message to every session of the recipient and
// every session of the sender, so all of the sender's own clients see the
// conversation.
func (s *ChatService) Direct(ctx context.Context, sender *model.Session, toUsername, message string) *model.Error {
	if verr := validation.Username(toUsername); verr != nil {
		return verr
	}
	if verr := validation.Message(message); verr != nil {
		return verr
	}
	if strings.EqualFold(toUsername, sender.Username()) {
		return model.NewError(model.ErrKindCannotMessageSelf)
	}

	targets := s.presence.ByUsername(toUsername)
	if len(targets) == 0 {
		return model.NewErrorWith(model.ErrKindUserNotOnline, "username", toUsername)
	}
	target := targets[0]

	s.router.Publish(inbound.Event{
		Frame: model.UserMessage{
			FromUsername: sender.Username(),
			FromAdmin:    sender.IsAdmin(),
			ToUsername:   target.Username(),
			Message:      message,
		},
		UserIDs: []int64{sender.UserID(), target.UserID()},
	})
	return nil
}

// Broadcast pushes an announcement to every Active session regardless of
// chat permissions.
func (s *ChatService) Broadcast(ctx context.Context, sender *model.Session, message string) *model.Error {
	if verr := validation.Message(message); verr != nil {
		return verr
	}

	s.logger.Info("Server broadcast", "sessionID", sender.ID, "username", sender.Username())
	s.router.Publish(inbound.Event{
		Frame: model.ServerBroadcast{
			SessionID: sender.ID,
			Username:  sender.Username(),
			Message:   message,
		},
	})
	return nil
}

func (s *ChatService) Topic(ctx context.Context) (string, string, *model.Error) {
	topic, setBy, err := s.chatState.Topic(ctx)
	if err != nil {
		s.logger.Error("Failed to load chat topic", "error", err)
		return "", "", model.NewError(model.ErrKindDatabase)
	}
	return topic, setBy, nil
}

// UpdateTopic persists the new topic and notifies every chat_topic holder.
// An empty topic clears it.
func (s *ChatService) UpdateTopic(ctx context.Context, sender *model.Session, topic string) *model.Error {
	if verr := validation.ChatTopic(topic); verr != nil {
		return verr
	}
	if !s.chatEnabled(ctx) {
		return model.NewError(model.ErrKindChatFeatureDisabled)
	}

	if err := s.chatState.SetTopic(ctx, topic, sender.Username()); err != nil {
		s.logger.Error("Failed to persist chat topic", "error", err)
		return model.NewError(model.ErrKindDatabase)
	}

	s.router.Publish(inbound.Event{
		Frame: model.ChatTopic{
			Topic:    topic,
			Username: sender.Username(),
		},
		Require: model.PermChatTopic,
	})
	return nil
}

func (s *ChatService) chatEnabled(ctx context.Context) bool {
	enabled, err := s.config.ChatEnabled(ctx)
	if err != nil {
		s.logger.Error("Failed to read chat_enabled flag", "error", err)
		return false
	}
	return enabled
}
