// Package logging adapts Go's structured logging (slog) to the Logger port.
// Writes go through a buffered channel so hot paths never block on IO; when
// the buffer is full the entry is dropped rather than stalling a session.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/zquestz/nexus/domain/port/outbound"
)

type entry struct {
	level slog.Level
	msg   string
	args  []any
}

// SlogAdapter implements outbound.Logger on top of slog with asynchronous
// delivery.
type SlogAdapter struct {
	logger   *slog.Logger
	levelVar *slog.LevelVar
	entries  chan entry
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// New builds an adapter writing text logs to stderr at the given level
// ("debug", "info", "warn", "error").
func New(level string) *SlogAdapter {
	return NewWithWriter(os.Stderr, level)
}

func NewWithWriter(w io.Writer, level string) *SlogAdapter {
	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(level))

	ctx, cancel := context.WithCancel(context.Background())
	a := &SlogAdapter{
		logger:   slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar})),
		levelVar: levelVar,
		entries:  make(chan entry, 1024),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

var _ outbound.Logger = (*SlogAdapter)(nil)

func (a *SlogAdapter) run() {
	defer close(a.done)
	for {
		select {
		case e := <-a.entries:
			a.logger.Log(context.Background(), e.level, e.msg, e.args...)
		case <-a.ctx.Done():
			// drain what is already queued before exiting
			for {
				select {
				case e := <-a.entries:
					a.logger.Log(context.Background(), e.level, e.msg, e.args...)
				default:
					return
				}
			}
		}
	}
}

// SetLevel changes the minimum level at runtime.
func (a *SlogAdapter) SetLevel(level string) {
	a.levelVar.Set(parseLevel(level))
}

func (a *SlogAdapter) send(level slog.Level, msg string, args []any) {
	if level < a.levelVar.Level() {
		return
	}
	select {
	case a.entries <- entry{level: level, msg: msg, args: args}:
	default:
	}
}

func (a *SlogAdapter) Error(msg string, args ...any) { a.send(slog.LevelError, msg, args) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.send(slog.LevelWarn, msg, args) }
func (a *SlogAdapter) Info(msg string, args ...any)  { a.send(slog.LevelInfo, msg, args) }
func (a *SlogAdapter) Debug(msg string, args ...any) { a.send(slog.LevelDebug, msg, args) }

// Shutdown stops the worker after flushing queued entries.
func (a *SlogAdapter) Shutdown() {
	a.cancel()
	<-a.done
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
