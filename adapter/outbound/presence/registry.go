// Package presence keeps the authoritative in-memory index of live
// sessions. Everything is rebuilt from scratch on restart; nothing here is
// persisted.
package presence

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zquestz/nexus/domain/model"
)

// Registry indexes sessions by session ID, user ID, and folded username,
// and tracks per-IP connection counts for the admission gate. One mutex
// guards every index so registration is atomic: a session is either visible
// in all of them or in none.
type Registry struct {
	nextID atomic.Uint32

	mu         sync.RWMutex
	bySession  map[uint32]*model.Session
	byUser     map[int64]map[uint32]*model.Session
	byUsername map[string]map[uint32]*model.Session
	ipCounts   map[string]uint32
}

func NewRegistry() *Registry {
	return &Registry{
		bySession:  make(map[uint32]*model.Session),
		byUser:     make(map[int64]map[uint32]*model.Session),
		byUsername: make(map[string]map[uint32]*model.Session),
		ipCounts:   make(map[string]uint32),
	}
}

// NextSessionID hands out monotonically increasing IDs, never reused within
// a server run.
func (r *Registry) NextSessionID() uint32 {
	return r.nextID.Add(1)
}

// Register adds an Active session to every index.
func (r *Registry) Register(s *model.Session) {
	key := foldUsername(s.Username())
	userID := s.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bySession[s.ID] = s
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[uint32]*model.Session)
	}
	r.byUser[userID][s.ID] = s
	if r.byUsername[key] == nil {
		r.byUsername[key] = make(map[uint32]*model.Session)
	}
	r.byUsername[key][s.ID] = s
}

// Unregister removes the session from every index and returns it, or nil if
// it was never registered.
func (r *Registry) Unregister(sessionID uint32) *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.bySession[sessionID]
	if !ok {
		return nil
	}
	delete(r.bySession, sessionID)

	userID := s.UserID()
	if sessions := r.byUser[userID]; sessions != nil {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.byUser, userID)
		}
	}
	key := foldUsername(s.Username())
	if sessions := r.byUsername[key]; sessions != nil {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.byUsername, key)
		}
	}
	return s
}

func (r *Registry) BySessionID(id uint32) (*model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.bySession[id]
	return s, ok
}

func (r *Registry) ByUserID(userID int64) []*model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byUser[userID])
}

func (r *Registry) ByUsername(username string) []*model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byUsername[foldUsername(username)])
}

func (r *Registry) Sessions() []*model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Session, 0, len(r.bySession))
	for _, s := range r.bySession {
		out = append(out, s)
	}
	return out
}

func (r *Registry) UserSessionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// Rename moves a user's sessions to the new username key. Callers update
// the sessions' own cached usernames separately.
func (r *Registry) Rename(userID int64, username string) {
	newKey := foldUsername(username)

	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.byUser[userID]
	if len(sessions) == 0 {
		return
	}
	for id, s := range sessions {
		oldKey := foldUsername(s.Username())
		if old := r.byUsername[oldKey]; old != nil {
			delete(old, id)
			if len(old) == 0 {
				delete(r.byUsername, oldKey)
			}
		}
		if r.byUsername[newKey] == nil {
			r.byUsername[newKey] = make(map[uint32]*model.Session)
		}
		r.byUsername[newKey][id] = s
	}
}

// AcquireIP admits a new connection from ip unless the per-IP limit is
// already reached. Every Acquire must be paired with one Release.
func (r *Registry) AcquireIP(ip string, max uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ipCounts[ip] >= max {
		return false
	}
	r.ipCounts[ip]++
	return true
}

func (r *Registry) ReleaseIP(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ipCounts[ip] <= 1 {
		delete(r.ipCounts, ip)
		return
	}
	r.ipCounts[ip]--
}

func collect(m map[uint32]*model.Session) []*model.Session {
	if len(m) == 0 {
		return nil
	}
	out := make([]*model.Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

func foldUsername(username string) string {
	return strings.ToLower(username)
}
