// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/eliteGoblin/focusd/web_mon/internal/bridge"
)

// FakeExtension plays the browser extension against a running bridge.
// Every command it receives is acknowledged and recorded.
type FakeExtension struct {
	conn *websocket.Conn

	writeMu  sync.Mutex
	mu       sync.Mutex
	received []bridge.Command
	commands chan bridge.Command
	done     chan struct{}
}

// DialExtension connects to ws://<addr>/extension.
func DialExtension(addr string) (*FakeExtension, error) {
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/extension", addr), nil)
	if err != nil {
		return nil, err
	}
	f := &FakeExtension{
		conn:     conn,
		commands: make(chan bridge.Command, 64),
		done:     make(chan struct{}),
	}
	go f.readLoop()
	return f, nil
}

func (f *FakeExtension) readLoop() {
	defer close(f.done)
	for {
		var cmd bridge.Command
		if err := f.conn.ReadJSON(&cmd); err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, cmd)
		f.mu.Unlock()
		select {
		case f.commands <- cmd:
		default:
		}
		_ = f.send(bridge.ExtensionMessage{Type: bridge.MsgAck, ID: cmd.ID})
	}
}

func (f *FakeExtension) send(msg bridge.ExtensionMessage) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.conn.WriteJSON(msg)
}

// Focus reports window focus, optionally with the active tab.
func (f *FakeExtension) Focus(focused bool, tabID int, url string) error {
	return f.send(bridge.ExtensionMessage{Type: bridge.MsgFocus, Focused: &focused, TabID: tabID, URL: url})
}

// ActivateTab reports that tabID became the active tab.
func (f *FakeExtension) ActivateTab(tabID int, url string) error {
	return f.send(bridge.ExtensionMessage{Type: bridge.MsgTabActivated, TabID: tabID, URL: url})
}

// Navigate reports a top-frame navigation.
func (f *FakeExtension) Navigate(tabID int, url string) error {
	return f.send(bridge.ExtensionMessage{Type: bridge.MsgNavigation, TabID: tabID, URL: url})
}

// PageComplete reports that a page finished loading.
func (f *FakeExtension) PageComplete(tabID int, url string) error {
	return f.send(bridge.ExtensionMessage{Type: bridge.MsgPageComplete, TabID: tabID, URL: url})
}

// SendRaw writes an arbitrary frame.
func (f *FakeExtension) SendRaw(data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// Commands delivers commands as they arrive.
func (f *FakeExtension) Commands() <-chan bridge.Command {
	return f.commands
}

// Received returns every command seen so far.
func (f *FakeExtension) Received() []bridge.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bridge.Command, len(f.received))
	copy(out, f.received)
	return out
}

// NavigatedTo reports whether a navigate command for tabID to url arrived.
func (f *FakeExtension) NavigatedTo(tabID int, url string) bool {
	for _, c := range f.Received() {
		if c.Type == bridge.CmdNavigate && c.TabID == tabID && c.URL == url {
			return true
		}
	}
	return false
}

// Closed is closed once the bridge drops the link.
func (f *FakeExtension) Closed() <-chan struct{} {
	return f.done
}

// Close drops the link.
func (f *FakeExtension) Close() error {
	return f.conn.Close()
}

// DialPopup connects a popup and returns its raw connection.
func DialPopup(addr string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/popup", addr), nil)
	return conn, err
}

// ReadFeed reads popup frames until one carries key, and returns it.
func ReadFeed(conn *websocket.Conn, key string) (json.RawMessage, error) {
	for {
		var frame map[string]json.RawMessage
		if err := conn.ReadJSON(&frame); err != nil {
			return nil, err
		}
		if v, ok := frame[key]; ok {
			return v, nil
		}
	}
}
