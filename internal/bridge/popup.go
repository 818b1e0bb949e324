package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// ErrObserverClosed is returned by Push after the connection went away.
var ErrObserverClosed = errors.New("observer closed")

// ErrObserverSlow is returned by Push when the outbound queue is full.
var ErrObserverSlow = errors.New("observer queue full")

// popupObserver is one popup connection. Push never blocks; the socket
// writes happen on the connection's own goroutine.
type popupObserver struct {
	id   string
	send chan any

	closeOnce sync.Once
	done      chan struct{}
}

func newPopupObserver() *popupObserver {
	return &popupObserver{
		id:   uuid.NewString(),
		send: make(chan any, popupSendBuffer),
		done: make(chan struct{}),
	}
}

// ID implements domain.FeedObserver.
func (o *popupObserver) ID() string { return o.id }

// Push implements domain.FeedObserver.
func (o *popupObserver) Push(msg any) error {
	select {
	case <-o.done:
		return ErrObserverClosed
	default:
	}
	select {
	case o.send <- msg:
		return nil
	default:
		return ErrObserverSlow
	}
}

func (o *popupObserver) close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// servePopup runs one popup connection: attach, answer actions, detach.
func (s *Server) servePopup(ctx context.Context, conn *websocket.Conn) {
	obs := newPopupObserver()
	s.commands.Attach(obs)
	s.logger.Debug("popup attached", zap.String("observer", obs.id))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-obs.done:
				return
			case msg := <-obs.send:
				if err := conn.WriteJSON(msg); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var req PopupRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Warn("dropping malformed popup message", zap.Error(err))
			continue
		}
		if reply := s.popupAction(ctx, req.Action); reply != nil {
			if err := obs.Push(reply); err != nil {
				s.logger.Warn("popup reply dropped", zap.Error(err))
			}
		}
	}

	s.commands.Detach(obs.id)
	obs.close()
	conn.Close()
	wg.Wait()
	s.logger.Debug("popup detached", zap.String("observer", obs.id))
}

// popupAction runs one popup action and returns its reply, if any.
func (s *Server) popupAction(ctx context.Context, action string) any {
	switch action {
	case ActionToggleImages:
		if _, err := s.commands.ToggleImages(ctx); err != nil {
			s.logger.Warn("image toggle failed", zap.Error(err))
			return StatusReply{Status: StatusError}
		}
		return StatusReply{Status: StatusDone}

	case ActionToggleVideos:
		if _, err := s.commands.ToggleVideos(ctx); err != nil {
			s.logger.Warn("video toggle failed", zap.Error(err))
			return StatusReply{Status: StatusError}
		}
		return StatusReply{Status: StatusDone}

	case ActionMediaState:
		state, err := s.commands.MediaState(ctx)
		if err != nil {
			return StatusReply{Status: StatusError}
		}
		return state
	}

	s.logger.Debug("ignoring popup action", zap.String("action", action))
	return nil
}

// Ensure popupObserver implements domain.FeedObserver.
var _ domain.FeedObserver = (*popupObserver)(nil)
