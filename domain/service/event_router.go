package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/inbound"
	"github.com/zquestz/nexus/domain/port/outbound"
)

// EventRouter fans server frames out to subscribed sessions. Each delivery
// is a non-blocking enqueue onto the recipient's bounded queue; a recipient
// that cannot keep up is shut down instead of stalling everyone else.
type EventRouter struct {
	mu   sync.RWMutex
	subs map[string]*model.Session

	logger outbound.Logger
}

func NewEventRouter(logger outbound.Logger) *EventRouter {
	return &EventRouter{
		subs:   make(map[string]*model.Session),
		logger: logger,
	}
}

func (r *EventRouter) Subscribe(s *model.Session) string {
	id := uuid.New().String()
	r.mu.Lock()
	r.subs[id] = s
	r.mu.Unlock()

	r.logger.Debug("Session subscribed to event router",
		"subscriptionID", id, "sessionID", s.ID)
	return id
}

func (r *EventRouter) Unsubscribe(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Publish delivers the event to every matching subscriber. The enqueue is
// non-blocking so the snapshot lock is cheap to hold; a full queue marks the
// recipient dead and closes it.
func (r *EventRouter) Publish(ev inbound.Event) {
	var userFilter map[int64]struct{}
	if ev.UserIDs != nil {
		userFilter = make(map[int64]struct{}, len(ev.UserIDs))
		for _, id := range ev.UserIDs {
			userFilter[id] = struct{}{}
		}
	}
	var excluded map[uint32]struct{}
	if len(ev.ExcludeSessions) > 0 {
		excluded = make(map[uint32]struct{}, len(ev.ExcludeSessions))
		for _, id := range ev.ExcludeSessions {
			excluded[id] = struct{}{}
		}
	}

	r.mu.RLock()
	recipients := make([]*model.Session, 0, len(r.subs))
	for _, s := range r.subs {
		recipients = append(recipients, s)
	}
	r.mu.RUnlock()

	for _, s := range recipients {
		if s.State() != model.StateActive {
			continue
		}
		if excluded != nil {
			if _, skip := excluded[s.ID]; skip {
				continue
			}
		}
		if userFilter != nil {
			if _, ok := userFilter[s.UserID()]; !ok {
				continue
			}
		}
		switch ev.Audience {
		case inbound.AudienceAdmins:
			if !s.IsAdmin() {
				continue
			}
		case inbound.AudienceNonAdmins:
			if s.IsAdmin() {
				continue
			}
		}
		if ev.Require != "" && !s.HasPermission(ev.Require) {
			continue
		}

		if !s.TryEnqueue(ev.Frame) {
			r.logger.Warn("Outbound queue full, dropping session",
				"sessionID", s.ID, "username", s.Username(),
				"frameType", ev.Frame.ServerType())
			s.Shutdown()
		}
	}
}
