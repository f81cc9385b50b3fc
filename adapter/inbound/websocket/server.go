// Package websocket bridges the frame protocol onto WebSocket: every text
// message carries exactly one JSON frame, the same frames as the TCP
// transport. Intended for browser clients behind a TLS-terminating proxy.
package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/zquestz/nexus/adapter/inbound/session"
	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/outbound"
)

const writeTimeout = 10 * time.Second

// Server exposes /ws for the frame bridge and /healthz for probes.
type Server struct {
	addr      string
	svc       session.Services
	timeouts  session.Timeouts
	queueSize int
	logger    outbound.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	connWG   sync.WaitGroup
}

func NewServer(
	address string,
	port int,
	svc session.Services,
	timeouts session.Timeouts,
	queueSize int,
) *Server {
	return &Server{
		addr:      net.JoinHostPort(address, strconv.Itoa(port)),
		svc:       svc,
		timeouts:  timeouts,
		queueSize: queueSize,
		logger:    svc.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// same-host deployments only; a proxy in front does real
				// origin policy
				return true
			},
		},
	}
}

// Start runs the HTTP server in the background.
func (s *Server) Start(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(ctx, w, r)
	})
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info("WebSocket bridge listening", "addr", s.addr)

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	wsConn.SetReadLimit(model.MaxFrameLength)

	handler, ok := session.NewHandler(ctx, &frameConn{conn: wsConn}, s.svc, s.timeouts, s.queueSize)
	if !ok {
		_ = wsConn.Close()
		return
	}

	s.connWG.Add(1)
	go func() {
		defer s.connWG.Done()
		handler.Run(ctx)
	}()
}

// Stop shuts the HTTP server down and waits for bridged sessions.
func (s *Server) Stop(ctx context.Context) {
	if s.httpSrv != nil {
		_ = s.httpSrv.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// frameConn adapts a WebSocket connection to the session transport
// contract: one text message per frame.
type frameConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var _ session.FrameConn = (*frameConn)(nil)

func (c *frameConn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, session.ErrFrameTooLong
			}
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (c *frameConn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *frameConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *frameConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *frameConn) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.conn.RemoteAddr().String()
	}
	return host
}

func (c *frameConn) Close() error {
	return c.conn.Close()
}
