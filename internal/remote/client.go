// Package remote implements the sync channel to the external control peer.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// DefaultRetryDelay is the fixed wait between connection attempts.
const DefaultRetryDelay = 5 * time.Second

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a connection to the control peer.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Client.
type Options struct {
	URL        string
	RetryDelay time.Duration
	Dialer     Dialer

	// Wait blocks for d or until ctx is done; false means ctx ended.
	// Defaults to a timer. Tests replace it to count reconnects.
	Wait func(ctx context.Context, d time.Duration) bool
}

// Client keeps a persistent connection to the control peer, reconnecting
// with a fixed delay forever. It never touches tracking state: inbound
// updates are handed out on Updates and usage is handed in via SendUsage.
type Client struct {
	url        string
	retryDelay time.Duration
	dialer     Dialer
	wait       func(ctx context.Context, d time.Duration) bool
	logger     *zap.Logger

	mu        sync.RWMutex
	state     domain.ConnState
	listeners []func(from, to domain.ConnState)

	outbound chan []byte
	updates  chan domain.PolicyUpdate
}

// NewClient creates a disconnected client. Call Run to start it.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Wait == nil {
		opts.Wait = sleepCtx
	}
	return &Client{
		url:        opts.URL,
		retryDelay: opts.RetryDelay,
		dialer:     opts.Dialer,
		wait:       opts.Wait,
		logger:     logger,
		state:      domain.Disconnected,
		outbound:   make(chan []byte, 1),
		updates:    make(chan domain.PolicyUpdate, 16),
	}
}

// Updates delivers decoded policy updates in arrival order.
func (c *Client) Updates() <-chan domain.PolicyUpdate {
	return c.updates
}

// State returns the current connection state.
func (c *Client) State() domain.ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// RetryDelay returns the wait between attempts.
func (c *Client) RetryDelay() time.Duration {
	return c.retryDelay
}

// OnStateChange registers a hook called on every transition.
// Hooks run on the client goroutine and must not block.
func (c *Client) OnStateChange(fn func(from, to domain.ConnState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SendUsage offers a ledger snapshot for transmission. It returns false
// and drops the snapshot when not connected. A snapshot that has not been
// written yet is replaced by the newer one.
func (c *Client) SendUsage(usage domain.SiteUsage) bool {
	if c.State() != domain.Connected {
		return false
	}
	msg, err := EncodeUsage(usage)
	if err != nil {
		c.logger.Warn("failed to encode usage", zap.Error(err))
		return false
	}

	for {
		select {
		case c.outbound <- msg:
			return true
		default:
		}
		// Slot is full: discard the stale snapshot and retry.
		select {
		case <-c.outbound:
		default:
		}
	}
}

// Run connects and reconnects until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		c.setState(domain.Connecting)
		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			c.logger.Debug("sync connect failed",
				zap.String("url", c.url),
				zap.Error(err))
		} else {
			c.setState(domain.Connected)
			c.logger.Info("sync channel connected", zap.String("url", c.url))
			err = c.serve(ctx, conn)
			if ctx.Err() == nil {
				c.logger.Warn("sync channel lost", zap.Error(err))
			}
		}

		c.setState(domain.Disconnected)
		if ctx.Err() != nil {
			return
		}
		if !c.wait(ctx, c.retryDelay) {
			return
		}
	}
}

// serve pumps one connection until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn Conn) error {
	// Anything queued belongs to the previous connection.
	select {
	case <-c.outbound:
	default:
	}

	readErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr <- c.readLoop(ctx, conn)
	}()
	defer func() {
		conn.Close()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case msg := <-c.outbound:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handle(ctx, data)
	}
}

// handle decodes one inbound message. Bad input is logged and dropped.
func (c *Client) handle(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		c.logger.Warn("dropping malformed sync message", zap.ByteString("raw", truncate(data)))
		return
	}

	switch env.Event {
	case EventSuccess:
		c.logger.Info("control peer success", zap.String("message", serverMessage(env.Data)))
		return
	case EventError:
		c.logger.Warn("control peer error", zap.String("message", serverMessage(env.Data)))
		return
	}

	update, err := DecodeUpdate(env)
	if errors.Is(err, ErrUnknownEvent) {
		c.logger.Debug("ignoring unknown sync event", zap.String("event", env.Event))
		return
	}
	if err != nil {
		c.logger.Warn("dropping malformed sync payload",
			zap.String("event", env.Event),
			zap.Error(err))
		return
	}

	select {
	case c.updates <- update:
	case <-ctx.Done():
	}
}

func (c *Client) setState(to domain.ConnState) {
	c.mu.Lock()
	from := c.state
	c.state = to
	listeners := append([]func(from, to domain.ConnState){}, c.listeners...)
	c.mu.Unlock()

	if from == to {
		return
	}
	for _, fn := range listeners {
		fn(from, to)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(b []byte) []byte {
	const limit = 256
	if len(b) > limit {
		return b[:limit]
	}
	return b
}
