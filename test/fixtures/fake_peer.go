package fixtures

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/remote"
)

// FakePeer is a control peer: it accepts the daemon's sync connection,
// records usage reports and pushes policy events.
type FakePeer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	accepts  int
	last     domain.SiteUsage
	reports  int
	accepted chan struct{}
}

// NewFakePeer starts a peer listening on a random local port.
func NewFakePeer() *FakePeer {
	p := &FakePeer{accepted: make(chan struct{}, 16)}
	p.server = httptest.NewServer(http.HandlerFunc(p.serveWS))
	return p
}

// URL is the websocket URL the daemon should dial.
func (p *FakePeer) URL() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http") + "/ws"
}

func (p *FakePeer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.conn = conn
	p.accepts++
	p.mu.Unlock()
	select {
	case p.accepted <- struct{}{}:
	default:
	}

	for {
		var env remote.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event != remote.EventWebUsage {
			continue
		}
		var usage domain.SiteUsage
		if err := json.Unmarshal(env.Data, &usage); err != nil {
			continue
		}
		p.mu.Lock()
		p.last = usage
		p.reports++
		p.mu.Unlock()
	}
}

// Accepted signals each accepted connection.
func (p *FakePeer) Accepted() <-chan struct{} {
	return p.accepted
}

// Accepts counts accepted connections.
func (p *FakePeer) Accepts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepts
}

// LastUsage returns the most recent usage report, or nil.
func (p *FakePeer) LastUsage() domain.SiteUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last.Clone()
}

// Reports counts usage reports received.
func (p *FakePeer) Reports() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reports
}

// Push sends an event with data on the current connection.
func (p *FakePeer) Push(event string, data any) error {
	msg, err := remote.Encode(event, data)
	if err != nil {
		return err
	}
	return p.PushRaw(msg)
}

// PushRaw sends a raw frame on the current connection.
func (p *FakePeer) PushRaw(msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return websocket.ErrCloseSent
	}
	return p.conn.WriteMessage(websocket.TextMessage, msg)
}

// Block pushes a new block list.
func (p *FakePeer) Block(domains ...string) error {
	return p.Push(remote.EventBlocklistUpdated, map[string][]string{"websites": domains})
}

// Allow pushes a new allow list.
func (p *FakePeer) Allow(domains ...string) error {
	return p.Push(remote.EventAllowlistUpdated, map[string][]string{"websites": domains})
}

// SetEnforcement pushes the enforcement flag.
func (p *FakePeer) SetEnforcement(enabled bool) error {
	return p.Push(remote.EventEnforcementUpdated, map[string]bool{"enabled": enabled})
}

// Drop closes the current connection so the daemon has to reconnect.
func (p *FakePeer) Drop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close stops the peer.
func (p *FakePeer) Close() {
	p.Drop()
	p.server.CloseClientConnections()
	p.server.Close()
}
