package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

var (
	// ErrNoExtension is returned by effectors when no extension is attached.
	ErrNoExtension = errors.New("no browser extension attached")

	// ErrBackpressure is returned when the extension isn't draining commands.
	ErrBackpressure = errors.New("extension command queue full")
)

// LinkRecorder observes extension link changes. *infra.Metrics implements it.
type LinkRecorder interface {
	ExtensionAttached(attached bool)
}

// link is one extension connection.
type link struct {
	id   string
	conn *websocket.Conn
	send chan Command
	done chan struct{}
}

// Extension is the daemon's view of the browser through the companion
// extension. It implements domain.Browser, domain.Navigator and
// domain.Suppressor. At most one link is live; a newer one replaces it.
type Extension struct {
	logger   *zap.Logger
	recorder LinkRecorder
	now      func() time.Time

	mu      sync.RWMutex
	current *link
	focused bool
	active  *domain.Tab

	events chan domain.BrowserEvent
}

// NewExtension creates an extension endpoint with no link attached.
func NewExtension(recorder LinkRecorder, logger *zap.Logger) *Extension {
	return &Extension{
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
		events:   make(chan domain.BrowserEvent, browserEventBuffer),
	}
}

// Attached implements domain.Browser. It reports whether an extension link
// is live.
func (e *Extension) Attached() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current != nil
}

// Focused implements domain.Browser. Without a link nothing is focused.
func (e *Extension) Focused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current != nil && e.focused
}

// ActiveTab implements domain.Browser.
func (e *Extension) ActiveTab() *domain.Tab {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil || e.active == nil {
		return nil
	}
	t := *e.active
	return &t
}

// Events implements domain.Browser.
func (e *Extension) Events() <-chan domain.BrowserEvent {
	return e.events
}

// Navigate implements domain.Navigator.
func (e *Extension) Navigate(_ context.Context, tabID int, url string) error {
	return e.enqueue(Command{Type: CmdNavigate, TabID: tabID, URL: url})
}

// Reload implements domain.Navigator.
func (e *Extension) Reload(_ context.Context, tabID int) error {
	return e.enqueue(Command{Type: CmdReload, TabID: tabID})
}

// SetImages implements domain.Suppressor.
func (e *Extension) SetImages(_ context.Context, tabID int, blocked bool) error {
	return e.enqueue(Command{Type: CmdSetImages, TabID: tabID, Enabled: &blocked})
}

// SetVideos implements domain.Suppressor.
func (e *Extension) SetVideos(_ context.Context, tabID int, blocked bool) error {
	return e.enqueue(Command{Type: CmdSetVideos, TabID: tabID, Enabled: &blocked})
}

// enqueue hands cmd to the link writer without waiting on the socket.
func (e *Extension) enqueue(cmd Command) error {
	e.mu.RLock()
	l := e.current
	e.mu.RUnlock()
	if l == nil {
		return ErrNoExtension
	}

	cmd.ID = uuid.NewString()
	select {
	case l.send <- cmd:
		return nil
	case <-l.done:
		return ErrNoExtension
	default:
		return fmt.Errorf("%s: %w", cmd.Type, ErrBackpressure)
	}
}

// Serve runs one extension connection until it closes. It replaces any
// existing link.
func (e *Extension) Serve(ctx context.Context, conn *websocket.Conn) {
	l := &link{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Command, extensionSendBuffer),
		done: make(chan struct{}),
	}

	e.mu.Lock()
	prev := e.current
	e.current = l
	e.focused = false
	e.active = nil
	e.mu.Unlock()

	if prev != nil {
		e.logger.Info("replacing extension link", zap.String("old", prev.id), zap.String("new", l.id))
		prev.conn.Close()
	}
	if e.recorder != nil {
		e.recorder.ExtensionAttached(true)
	}
	e.logger.Info("extension attached", zap.String("link", l.id))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.writeLoop(ctx, l)
	}()

	e.readLoop(l)

	close(l.done)
	conn.Close()
	wg.Wait()

	e.mu.Lock()
	if e.current == l {
		e.current = nil
		e.focused = false
		e.active = nil
		if e.recorder != nil {
			e.recorder.ExtensionAttached(false)
		}
	}
	e.mu.Unlock()
	e.logger.Info("extension detached", zap.String("link", l.id))
}

func (e *Extension) writeLoop(ctx context.Context, l *link) {
	for {
		select {
		case <-ctx.Done():
			l.conn.Close()
			return
		case <-l.done:
			return
		case cmd := <-l.send:
			if err := l.conn.WriteJSON(cmd); err != nil {
				e.logger.Warn("extension write failed",
					zap.String("command", cmd.Type),
					zap.Error(err))
				l.conn.Close()
				return
			}
		}
	}
}

func (e *Extension) readLoop(l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ExtensionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			e.logger.Warn("dropping malformed extension message", zap.Error(err))
			continue
		}
		e.handle(msg)
	}
}

// handle updates the cached browser state and forwards tab facts.
func (e *Extension) handle(msg ExtensionMessage) {
	at := e.now()

	switch msg.Type {
	case MsgAck:
		if msg.Error != "" {
			e.logger.Warn("extension command failed",
				zap.String("id", msg.ID),
				zap.String("error", msg.Error))
		}
		return

	case MsgFocus:
		e.mu.Lock()
		if msg.Focused != nil {
			e.focused = *msg.Focused
		}
		if msg.TabID > 0 {
			e.active = &domain.Tab{ID: msg.TabID, URL: msg.URL}
		}
		e.mu.Unlock()
		return

	case MsgTabActivated:
		e.mu.Lock()
		e.active = &domain.Tab{ID: msg.TabID, URL: msg.URL}
		e.mu.Unlock()

	case MsgNavigation, MsgTabUpdated:
		if msg.Type == MsgNavigation && msg.FrameID != 0 {
			break
		}
		e.mu.Lock()
		if e.active != nil && e.active.ID == msg.TabID && msg.URL != "" {
			e.active.URL = msg.URL
		}
		e.mu.Unlock()

	case MsgPageComplete:

	default:
		e.logger.Debug("ignoring extension message", zap.String("type", msg.Type))
		return
	}

	ev := domain.BrowserEvent{
		Kind:    domain.EventKind(msg.Type),
		TabID:   msg.TabID,
		URL:     msg.URL,
		FrameID: msg.FrameID,
		At:      at,
	}
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("browser event dropped, daemon not keeping up",
			zap.String("type", msg.Type),
			zap.Int("tab_id", msg.TabID))
	}
}

// Ensure Extension implements the browser-facing interfaces.
var (
	_ domain.Browser    = (*Extension)(nil)
	_ domain.Navigator  = (*Extension)(nil)
	_ domain.Suppressor = (*Extension)(nil)
)
