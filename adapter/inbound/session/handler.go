// Package session implements the per-connection protocol state machine,
// shared by the TCP and WebSocket transports. A connection advances
// AwaitHandshake -> AwaitLogin -> Active exactly once; every frame is
// dispatched according to the current state.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/inbound"
	"github.com/zquestz/nexus/domain/port/outbound"
)

// ErrFrameTooLong is returned by FrameConn.ReadFrame when the peer sent a
// single frame over the absolute length ceiling. The session surfaces it as
// invalid-message-format before closing.
var ErrFrameTooLong = errors.New("frame exceeds maximum length")

// FrameConn is one framed connection as seen by the state machine. The
// transport owns framing and the absolute frame-length ceiling; frames
// arrive here as raw JSON lines.
type FrameConn interface {
	// ReadFrame returns the next frame, blocking until one arrives, the
	// deadline expires, or the peer closes.
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() string
	// RemoteIP is the address without the port, as counted by the per-IP
	// gate.
	RemoteIP() string
	Close() error
}

// Services bundles everything a session needs.
type Services struct {
	Auth      inbound.AuthService
	Chat      inbound.ChatService
	Users     inbound.UserAdminService
	Server    inbound.ServerService
	Router    inbound.EventRouter
	Presence  outbound.PresenceRegistry
	Config    outbound.ConfigRepository
	Localizer outbound.Localizer
	Logger    outbound.Logger
}

// Timeouts bound the pre-Active states. Active sessions have no read
// deadline.
type Timeouts struct {
	Handshake time.Duration
	Login     time.Duration
}

// Handler runs one connection. It owns the socket and the bounded outbound
// queue; the presence registry and router only hold non-owning handles that
// are dropped during cleanup.
type Handler struct {
	conn     FrameConn
	svc      Services
	timeouts Timeouts

	session *model.Session

	out      chan model.ServerMessage
	quit     chan struct{}
	quitOnce sync.Once
	writerWG sync.WaitGroup

	subscriptionID string
	failedLogins   int
}

// NewHandler admits the connection through the per-IP gate and builds a
// handler for it. A nil return with ok=false means the gate refused; the
// caller closes the connection without any frame exchange.
func NewHandler(ctx context.Context, conn FrameConn, svc Services, timeouts Timeouts, queueSize int) (*Handler, bool) {
	limit, err := svc.Config.MaxConnectionsPerIP(ctx)
	if err != nil {
		svc.Logger.Error("Failed to read connection limit", "error", err)
		return nil, false
	}
	ip := conn.RemoteIP()
	if !svc.Presence.AcquireIP(ip, limit) {
		svc.Logger.Warn("Connection limit reached for IP", "ip", ip, "limit", limit)
		return nil, false
	}

	if queueSize <= 0 {
		queueSize = 256
	}
	h := &Handler{
		conn:     conn,
		svc:      svc,
		timeouts: timeouts,
		out:      make(chan model.ServerMessage, queueSize),
		quit:     make(chan struct{}),
	}
	h.session = model.NewSession(svc.Presence.NextSessionID(), conn.RemoteAddr(), ip, h)
	return h, true
}

// TryEnqueue implements model.Outbound: a non-blocking push onto the
// session's queue.
func (h *Handler) TryEnqueue(msg model.ServerMessage) bool {
	select {
	case h.out <- msg:
		return true
	default:
		return false
	}
}

// Shutdown implements model.Outbound: ask the I/O loops to wind down. Safe
// to call from any goroutine, any number of times.
func (h *Handler) Shutdown() {
	h.quitOnce.Do(func() {
		h.session.SetState(model.StateClosing)
		close(h.quit)
		// unblock a pending ReadFrame
		_ = h.conn.SetReadDeadline(time.Now())
	})
}

// Run drives the connection until it closes. Blocks; call in the
// connection's own goroutine.
func (h *Handler) Run(ctx context.Context) {
	h.svc.Logger.Debug("Session started",
		"sessionID", h.session.ID, "remote", h.session.RemoteAddr)

	h.writerWG.Add(1)
	go h.writeLoop()

	h.readLoop(ctx)
	h.cleanup()
}

func (h *Handler) readLoop(ctx context.Context) {
	for {
		select {
		case <-h.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		h.applyDeadline()
		frame, err := h.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrFrameTooLong) {
				h.svc.Logger.Debug("Rejecting oversized frame",
					"sessionID", h.session.ID)
				h.sendError(model.NewError(model.ErrKindInvalidMessageFormat), "")
				h.Shutdown()
			}
			return
		}

		msg, err := model.DecodeClientMessage(frame)
		if err != nil {
			h.svc.Logger.Debug("Rejecting malformed frame",
				"sessionID", h.session.ID, "error", err)
			h.sendError(model.NewError(model.ErrKindInvalidMessageFormat), "")
			h.Shutdown()
			return
		}

		if !h.dispatch(ctx, msg) {
			h.Shutdown()
			return
		}
	}
}

func (h *Handler) applyDeadline() {
	switch h.session.State() {
	case model.StateAwaitHandshake:
		_ = h.conn.SetReadDeadline(time.Now().Add(h.timeouts.Handshake))
	case model.StateAwaitLogin:
		_ = h.conn.SetReadDeadline(time.Now().Add(h.timeouts.Login))
	default:
		_ = h.conn.SetReadDeadline(time.Time{})
	}
}

// dispatch routes one frame. Returns false when the session must close.
func (h *Handler) dispatch(ctx context.Context, msg model.ClientMessage) bool {
	switch h.session.State() {
	case model.StateAwaitHandshake:
		return h.dispatchAwaitHandshake(ctx, msg)
	case model.StateAwaitLogin:
		return h.dispatchAwaitLogin(ctx, msg)
	case model.StateActive:
		return h.dispatchActive(ctx, msg)
	}
	return false
}

func (h *Handler) writeLoop() {
	defer h.writerWG.Done()
	for {
		select {
		case msg := <-h.out:
			if !h.writeFrame(msg) {
				return
			}
		case <-h.quit:
			// flush what was queued before the shutdown
			for {
				select {
				case msg := <-h.out:
					if !h.writeFrame(msg) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (h *Handler) writeFrame(msg model.ServerMessage) bool {
	data, err := model.EncodeServerMessage(msg)
	if err != nil {
		h.svc.Logger.Error("Failed to encode server frame",
			"sessionID", h.session.ID, "frameType", msg.ServerType(), "error", err)
		return true
	}
	if err := h.conn.WriteFrame(data); err != nil {
		return false
	}
	return true
}

// cleanup tears the session down: registry handles dropped first so no new
// traffic is routed here, then the socket.
func (h *Handler) cleanup() {
	h.Shutdown()

	wasActive := h.subscriptionID != ""
	if wasActive {
		h.svc.Router.Unsubscribe(h.subscriptionID)
		h.svc.Presence.Unregister(h.session.ID)
	}
	h.svc.Presence.ReleaseIP(h.session.RemoteIP)

	// Last session of the user leaving is the user going offline.
	if wasActive && h.svc.Presence.UserSessionCount(h.session.UserID()) == 0 {
		h.svc.Router.Publish(inbound.Event{
			Frame: model.UserDisconnected{
				SessionID: h.session.ID,
				Username:  h.session.Username(),
			},
			Require: model.PermUserList,
		})
		h.svc.Logger.Info("User disconnected",
			"sessionID", h.session.ID, "username", h.session.Username())
	}

	h.writerWG.Wait()
	_ = h.conn.Close()
	h.svc.Logger.Debug("Session closed", "sessionID", h.session.ID)
}

// sendError pushes an Error frame localized for this session.
func (h *Handler) sendError(perr *model.Error, command string) {
	h.TryEnqueue(model.ErrorFrame{
		Kind:    string(perr.Kind),
		Params:  perr.Params,
		Message: h.localize(perr),
		Command: command,
	})
}

func (h *Handler) localize(perr *model.Error) string {
	return h.svc.Localizer.Localize(h.session.Locale(), perr.Kind, perr.Params)
}
