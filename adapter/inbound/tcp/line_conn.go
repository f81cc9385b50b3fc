package tcp

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/zquestz/nexus/domain/model"

	"github.com/zquestz/nexus/adapter/inbound/session"
)

const writeTimeout = 10 * time.Second

// lineConn frames a TCP stream as newline-delimited JSON with an absolute
// line-length ceiling. Per-type ceilings are enforced later, once the type
// is known.
type lineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

var _ session.FrameConn = (*lineConn)(nil)

func newLineConn(conn net.Conn) *lineConn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), model.MaxFrameLength)
	return &lineConn{conn: conn, scanner: scanner}
}

func (c *lineConn) ReadFrame() ([]byte, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return nil, session.ErrFrameTooLong
			}
			return nil, err
		}
		return nil, fmt.Errorf("connection closed")
	}
	return c.scanner.Bytes(), nil
}

func (c *lineConn) WriteFrame(frame []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte{'\n'})
	return err
}

func (c *lineConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *lineConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *lineConn) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.conn.RemoteAddr().String()
	}
	return host
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}
