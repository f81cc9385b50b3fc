// Package tcp is the primary transport: a TLS listener speaking
// newline-delimited JSON frames, one session state machine per connection.
package tcp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/zquestz/nexus/adapter/inbound/session"
	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/outbound"
)

// Server accepts TLS connections on one or more bind addresses and hands
// each to a session handler.
type Server struct {
	binds     []string
	port      int
	tlsConfig *tls.Config
	svc       session.Services
	timeouts  session.Timeouts
	queueSize int
	logger    outbound.Logger

	mu        sync.Mutex
	listeners []net.Listener
	closed    bool

	wg sync.WaitGroup
}

func NewServer(
	binds []string,
	port int,
	tlsConfig *tls.Config,
	svc session.Services,
	timeouts session.Timeouts,
	queueSize int,
) *Server {
	return &Server{
		binds:     binds,
		port:      port,
		tlsConfig: tlsConfig,
		svc:       svc,
		timeouts:  timeouts,
		queueSize: queueSize,
		logger:    svc.Logger,
	}
}

// Start opens every listener. Any bind failing is fatal; already-opened
// listeners are closed again.
func (s *Server) Start(ctx context.Context) error {
	for _, bind := range s.binds {
		addr := net.JoinHostPort(bind, strconv.Itoa(s.port))
		ln, err := tls.Listen("tcp", addr, s.tlsConfig)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		s.mu.Lock()
		s.listeners = append(s.listeners, ln)
		s.mu.Unlock()

		s.logger.Info("Listening", "addr", addr)
		s.wg.Add(1)
		go s.acceptLoop(ctx, ln)
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.logger.Warn("Accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	// Complete TLS before the admission gate so a rejected connection never
	// sees a protocol frame, only a close.
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			s.logger.Debug("TLS handshake failed",
				"remote", conn.RemoteAddr().String(), "error", err)
			_ = conn.Close()
			return
		}
	}

	handler, ok := session.NewHandler(ctx, newLineConn(conn), s.svc, s.timeouts, s.queueSize)
	if !ok {
		_ = conn.Close()
		return
	}
	handler.Run(ctx)
}

// Stop closes the listeners, notifies every live session, and waits for the
// connection goroutines to finish or the context to expire.
func (s *Server) Stop(ctx context.Context) {
	s.closeListeners()

	for _, sess := range s.svc.Presence.Sessions() {
		sess.TryEnqueue(model.Disconnected{Reason: "server shutting down"})
		sess.Shutdown()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("All sessions closed")
	case <-ctx.Done():
		s.logger.Warn("Shutdown timed out waiting for sessions")
	}
}

func (s *Server) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	s.listeners = nil
}
