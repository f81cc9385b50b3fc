package service

import (
	"context"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/inbound"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CountUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *model.User, perms []model.Permission) error {
	args := m.Called(ctx, user, perms)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateUser(ctx context.Context, id int64, changes model.UserChanges) error {
	args := m.Called(ctx, id, changes)
	return args.Error(0)
}

func (m *MockUserRepository) DeleteUser(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserRepository) Permissions(ctx context.Context, userID int64) ([]model.Permission, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Permission), args.Error(1)
}

type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, encodedHash string) (bool, error) {
	args := m.Called(password, encodedHash)
	return args.Bool(0), args.Error(1)
}

// captureRouter records published events for assertions.
type captureRouter struct {
	mu     sync.Mutex
	events []inbound.Event
}

func (r *captureRouter) Subscribe(*model.Session) string { return "sub" }
func (r *captureRouter) Unsubscribe(string)              {}

func (r *captureRouter) Publish(ev inbound.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *captureRouter) published() []inbound.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inbound.Event(nil), r.events...)
}

// fakePresence is an in-memory presence registry seeded directly by tests.
type fakePresence struct {
	nextID    uint32
	sessions  []*model.Session
	renamedTo map[int64]string
}

func (p *fakePresence) NextSessionID() uint32 {
	p.nextID++
	return p.nextID
}

func (p *fakePresence) Register(s *model.Session) {
	p.sessions = append(p.sessions, s)
}

func (p *fakePresence) Unregister(sessionID uint32) *model.Session {
	for i, s := range p.sessions {
		if s.ID == sessionID {
			p.sessions = append(p.sessions[:i], p.sessions[i+1:]...)
			return s
		}
	}
	return nil
}

func (p *fakePresence) BySessionID(id uint32) (*model.Session, bool) {
	for _, s := range p.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

func (p *fakePresence) ByUserID(userID int64) []*model.Session {
	var out []*model.Session
	for _, s := range p.sessions {
		if s.UserID() == userID {
			out = append(out, s)
		}
	}
	return out
}

func (p *fakePresence) ByUsername(username string) []*model.Session {
	var out []*model.Session
	for _, s := range p.sessions {
		if strings.EqualFold(s.Username(), username) {
			out = append(out, s)
		}
	}
	return out
}

func (p *fakePresence) Sessions() []*model.Session {
	return append([]*model.Session(nil), p.sessions...)
}

func (p *fakePresence) UserSessionCount(userID int64) int {
	return len(p.ByUserID(userID))
}

func (p *fakePresence) Rename(userID int64, username string) {
	if p.renamedTo == nil {
		p.renamedTo = make(map[int64]string)
	}
	p.renamedTo[userID] = username
}

func (p *fakePresence) AcquireIP(string, uint32) bool { return true }
func (p *fakePresence) ReleaseIP(string)              {}

// stubServerService returns a fixed header block.
type stubServerService struct {
	info model.ServerInfo
}

func (s *stubServerService) Info(ctx context.Context, forAdmin bool) (*model.ServerInfo, error) {
	info := s.info
	if forAdmin {
		limit := uint32(5)
		info.MaxConnectionsPerIP = &limit
	}
	return &info, nil
}

func (s *stubServerService) Update(context.Context, *model.Session, model.ServerInfoUpdate) *model.Error {
	return nil
}

func (s *stubServerService) ChatEnabled(context.Context) bool { return true }

// stubConfig is a settable in-memory config store.
type stubConfig struct {
	name        string
	description string
	image       string
	maxConns    uint32
	chatEnabled bool
	err         error
}

func (c *stubConfig) ServerName(context.Context) (string, error) { return c.name, c.err }
func (c *stubConfig) SetServerName(_ context.Context, name string) error {
	c.name = name
	return c.err
}
func (c *stubConfig) ServerDescription(context.Context) (string, error) {
	return c.description, c.err
}
func (c *stubConfig) SetServerDescription(_ context.Context, description string) error {
	c.description = description
	return c.err
}
func (c *stubConfig) ServerImage(context.Context) (string, error) { return c.image, c.err }
func (c *stubConfig) SetServerImage(_ context.Context, image string) error {
	c.image = image
	return c.err
}
func (c *stubConfig) MaxConnectionsPerIP(context.Context) (uint32, error) {
	return c.maxConns, c.err
}
func (c *stubConfig) SetMaxConnectionsPerIP(_ context.Context, limit uint32) error {
	c.maxConns = limit
	return c.err
}
func (c *stubConfig) ChatEnabled(context.Context) (bool, error) { return c.chatEnabled, c.err }
func (c *stubConfig) SetChatEnabled(_ context.Context, enabled bool) error {
	c.chatEnabled = enabled
	return c.err
}

// stubChatState is a settable in-memory topic store.
type stubChatState struct {
	topic string
	setBy string
	err   error
}

func (c *stubChatState) Topic(context.Context) (string, string, error) {
	return c.topic, c.setBy, c.err
}

func (c *stubChatState) SetTopic(_ context.Context, topic, setBy string) error {
	if c.err != nil {
		return c.err
	}
	c.topic, c.setBy = topic, setBy
	return nil
}

// stubLocalizer renders the raw kind, which is all eviction tests need.
type stubLocalizer struct{}

func (stubLocalizer) Localize(locale string, kind model.ErrorKind, params map[string]string) string {
	return string(kind)
}
