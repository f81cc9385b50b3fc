package inbound

import "github.com/zquestz/nexus/domain/model"

// Audience splits delivery by admin status, for frames whose payload
// differs between admins and everyone else.
type Audience int

const (
	AudienceAll Audience = iota
	AudienceAdmins
	AudienceNonAdmins
)

// Event is one frame scheduled for fan-out. Zero-value scope fields widen
// delivery: no Require means no permission filter, nil UserIDs means every
// Active session.
type Event struct {
	Frame model.ServerMessage

	// Require filters recipients to sessions holding the permission
	// (admins always qualify).
	Require model.Permission

	// Audience further restricts recipients by admin status.
	Audience Audience

	// UserIDs restricts delivery to the sessions of these users.
	UserIDs []int64

	// ExcludeSessions drops specific session IDs from the recipient set.
	ExcludeSessions []uint32
}

// EventRouter fans frames out to subscribed sessions. Delivery is
// non-blocking per recipient: a full outbound queue drops only that
// session, never stalling the publisher or other recipients. Events
// published from one goroutine reach every shared recipient in publish
// order.
type EventRouter interface {
	Subscribe(s *model.Session) string
	Unsubscribe(id string)
	Publish(ev Event)
}
