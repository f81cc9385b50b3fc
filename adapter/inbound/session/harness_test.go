package session

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zquestz/nexus/adapter/outbound/crypto"
	"github.com/zquestz/nexus/adapter/outbound/presence"
	"github.com/zquestz/nexus/adapter/outbound/storage/sqlite"
	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/service"
	"github.com/zquestz/nexus/i18n"
)

const testTimeout = 3 * time.Second

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// fakeConn is an in-memory FrameConn: frames travel over channels and
// deadlines behave like socket deadlines.
type fakeConn struct {
	remoteIP string

	mu         sync.Mutex
	deadline   time.Time
	deadlineCh chan struct{}

	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	eofOnce   sync.Once
}

func newFakeConn(remoteIP string) *fakeConn {
	return &fakeConn{
		remoteIP:   remoteIP,
		deadlineCh: make(chan struct{}),
		in:         make(chan []byte, 64),
		out:        make(chan []byte, 256),
		closed:     make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	for {
		c.mu.Lock()
		deadline := c.deadline
		changed := c.deadlineCh
		c.mu.Unlock()

		var timer *time.Timer
		var expired <-chan time.Time
		if !deadline.IsZero() {
			timer = time.NewTimer(time.Until(deadline))
			expired = timer.C
		}

		select {
		case frame, ok := <-c.in:
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				return nil, io.EOF
			}
			if len(frame) > model.MaxFrameLength {
				return nil, ErrFrameTooLong
			}
			return frame, nil
		case <-c.closed:
			if timer != nil {
				timer.Stop()
			}
			return nil, net.ErrClosed
		case <-expired:
			return nil, os.ErrDeadlineExceeded
		case <-changed:
			// deadline updated mid-read; re-arm like a real socket would
			if timer != nil {
				timer.Stop()
			}
		}
	}
}

func (c *fakeConn) WriteFrame(frame []byte) error {
	select {
	case c.out <- frame:
		return nil
	case <-c.closed:
		return net.ErrClosed
	default:
		return errors.New("outbound buffer full")
	}
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	close(c.deadlineCh)
	c.deadlineCh = make(chan struct{})
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.remoteIP + ":50000" }
func (c *fakeConn) RemoteIP() string   { return c.remoteIP }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// closeClient simulates the peer hanging up.
func (c *fakeConn) closeClient() {
	c.eofOnce.Do(func() { close(c.in) })
}

// testServer wires the full stack onto a temp database.
type testServer struct {
	svc      Services
	timeouts Timeouts
	users    *sqlite.UserRepository
	config   *sqlite.ConfigRepository
	hasher   *crypto.Argon2Hasher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "nexus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	formatter, err := i18n.NewFormatter(nopLogger{})
	require.NoError(t, err)

	users := sqlite.NewUserRepository(db)
	configRepo := sqlite.NewConfigRepository(db)
	chatState := sqlite.NewChatStateRepository(db)
	registry := presence.NewRegistry()
	hasher := crypto.NewArgon2Hasher(crypto.Params{
		Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})

	router := service.NewEventRouter(nopLogger{})
	authSvc := service.NewAuthService(users, hasher, nopLogger{})
	serverSvc := service.NewServerService(configRepo, chatState, router, nopLogger{})
	chatSvc := service.NewChatService(chatState, configRepo, registry, router, nopLogger{})
	userSvc := service.NewUserAdminService(users, hasher, registry, router, serverSvc, formatter, nopLogger{})

	return &testServer{
		svc: Services{
			Auth:      authSvc,
			Chat:      chatSvc,
			Users:     userSvc,
			Server:    serverSvc,
			Router:    router,
			Presence:  registry,
			Config:    configRepo,
			Localizer: formatter,
			Logger:    nopLogger{},
		},
		timeouts: Timeouts{Handshake: testTimeout, Login: testTimeout},
		users:    users,
		config:   configRepo,
		hasher:   hasher,
	}
}

func (ts *testServer) seedUser(t *testing.T, username, password string, isAdmin bool,
	perms ...model.Permission) *model.User {
	t.Helper()
	hash, err := ts.hasher.Hash(password)
	require.NoError(t, err)
	user := &model.User{Username: username, PasswordHash: hash, IsAdmin: isAdmin, Enabled: true}
	require.NoError(t, ts.users.CreateUser(context.Background(), user, perms))
	return user
}

// client drives one connection through the handler.
type client struct {
	t    *testing.T
	conn *fakeConn
	done chan struct{}
}

func (ts *testServer) dial(t *testing.T, remoteIP string) *client {
	t.Helper()
	c, ok := ts.dialMaybe(t, remoteIP)
	require.True(t, ok, "admission gate refused the connection")
	return c
}

func (ts *testServer) dialMaybe(t *testing.T, remoteIP string) (*client, bool) {
	t.Helper()
	conn := newFakeConn(remoteIP)
	handler, ok := NewHandler(context.Background(), conn, ts.svc, ts.timeouts, 64)
	if !ok {
		return nil, false
	}

	done := make(chan struct{})
	go func() {
		handler.Run(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		conn.closeClient()
		select {
		case <-done:
		case <-time.After(testTimeout):
		}
	})
	return &client{t: t, conn: conn, done: done}, true
}

func (c *client) send(msg model.ClientMessage) {
	c.t.Helper()
	data, err := model.EncodeClientMessage(msg)
	require.NoError(c.t, err)
	c.sendRaw(data)
}

func (c *client) sendRaw(frame []byte) {
	c.t.Helper()
	select {
	case c.conn.in <- frame:
	case <-time.After(testTimeout):
		c.t.Fatal("timed out sending frame")
	}
}

// recv returns the next server frame.
func (c *client) recv() model.ServerMessage {
	c.t.Helper()
	select {
	case data := <-c.conn.out:
		msg, err := model.DecodeServerMessage(data)
		require.NoError(c.t, err, "frame: %s", data)
		return msg
	case <-time.After(testTimeout):
		c.t.Fatal("timed out waiting for a server frame")
		return nil
	}
}

// recvType reads frames until one of the wanted type arrives, skipping
// unrelated push traffic.
func (c *client) recvType(wantType string) model.ServerMessage {
	c.t.Helper()
	for i := 0; i < 16; i++ {
		msg := c.recv()
		if msg.ServerType() == wantType {
			return msg
		}
	}
	c.t.Fatalf("no %s frame within 16 frames", wantType)
	return nil
}

// expectNoFrame asserts that nothing arrives for a short window.
func (c *client) expectNoFrame() {
	c.t.Helper()
	select {
	case data := <-c.conn.out:
		c.t.Fatalf("unexpected frame: %s", data)
	case <-time.After(200 * time.Millisecond):
	}
}

// expectClosed waits for the handler to finish.
func (c *client) expectClosed() {
	c.t.Helper()
	select {
	case <-c.done:
	case <-time.After(testTimeout):
		c.t.Fatal("session did not close")
	}
}

// login runs the happy-path handshake and login for an existing user.
func (c *client) login(username, password string) *model.LoginResponse {
	c.t.Helper()
	c.send(model.Handshake{Version: model.ServerVersion})
	hs := c.recv().(*model.HandshakeResponse)
	require.True(c.t, hs.Success)

	c.send(model.Login{Username: username, Password: password})
	resp := c.recvType("LoginResponse").(*model.LoginResponse)
	require.True(c.t, resp.Success, "login failed: %s", resp.ErrorText)
	return resp
}
