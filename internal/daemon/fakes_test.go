package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t0.Add(time.Duration(seconds * float64(time.Second)))
}

// memoryKV implements domain.KVStore and fires listeners synchronously.
type memoryKV struct {
	mu        sync.Mutex
	data      map[string][]byte
	listeners []func(string, []byte)
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string][]byte)}
}

func (m *memoryKV) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *memoryKV) Set(_ context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	for k, v := range entries {
		m.data[k] = v
	}
	listeners := append([]func(string, []byte){}, m.listeners...)
	m.mu.Unlock()
	for k, v := range entries {
		for _, fn := range listeners {
			fn(k, v)
		}
	}
	return nil
}

func (m *memoryKV) OnChange(fn func(string, []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *memoryKV) value(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data[key])
}

type command struct {
	kind    string
	tabID   int
	url     string
	blocked bool
}

// fakeBrowser implements domain.Browser, Navigator and Suppressor.
type fakeBrowser struct {
	mu       sync.Mutex
	detached bool
	focused  bool
	active   *domain.Tab
	commands []command
	events   chan domain.BrowserEvent
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{events: make(chan domain.BrowserEvent, 16)}
}

func (b *fakeBrowser) Focused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focused
}

func (b *fakeBrowser) ActiveTab() *domain.Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return nil
	}
	t := *b.active
	return &t
}

func (b *fakeBrowser) Events() <-chan domain.BrowserEvent { return b.events }

func (b *fakeBrowser) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.detached
}

func (b *fakeBrowser) setAttached(attached bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detached = !attached
}

func (b *fakeBrowser) setFocus(focused bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.focused = focused
}

func (b *fakeBrowser) setActive(id int, url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = &domain.Tab{ID: id, URL: url}
}

func (b *fakeBrowser) record(c command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, c)
	return nil
}

func (b *fakeBrowser) Navigate(_ context.Context, tabID int, url string) error {
	return b.record(command{kind: "navigate", tabID: tabID, url: url})
}

func (b *fakeBrowser) Reload(_ context.Context, tabID int) error {
	return b.record(command{kind: "reload", tabID: tabID})
}

func (b *fakeBrowser) SetImages(_ context.Context, tabID int, blocked bool) error {
	return b.record(command{kind: "images", tabID: tabID, blocked: blocked})
}

func (b *fakeBrowser) SetVideos(_ context.Context, tabID int, blocked bool) error {
	return b.record(command{kind: "videos", tabID: tabID, blocked: blocked})
}

func (b *fakeBrowser) recorded(kind string) []command {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []command
	for _, c := range b.commands {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// fakeSync implements Sync.
type fakeSync struct {
	mu        sync.Mutex
	state     domain.ConnState
	snapshots []domain.SiteUsage
	updates   chan domain.PolicyUpdate
}

func newFakeSync() *fakeSync {
	return &fakeSync{updates: make(chan domain.PolicyUpdate, 8)}
}

func (s *fakeSync) SendUsage(u domain.SiteUsage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.Connected {
		return false
	}
	s.snapshots = append(s.snapshots, u)
	return true
}

func (s *fakeSync) Updates() <-chan domain.PolicyUpdate { return s.updates }

func (s *fakeSync) State() domain.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSync) setState(st domain.ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *fakeSync) sent() []domain.SiteUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SiteUsage(nil), s.snapshots...)
}

// fakeObserver implements domain.FeedObserver.
type fakeObserver struct {
	id   string
	mu   sync.Mutex
	msgs []any
	err  error
}

func (o *fakeObserver) ID() string { return o.id }

func (o *fakeObserver) Push(msg any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *fakeObserver) received() []any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]any(nil), o.msgs...)
}

func (o *fakeObserver) count(match func(any) bool) int {
	n := 0
	for _, m := range o.received() {
		if match(m) {
			n++
		}
	}
	return n
}

func isUsage(m any) bool {
	_, ok := m.(domain.UsageFeed)
	return ok
}

func isPolicy(m any) bool {
	_, ok := m.(domain.PolicyFeed)
	return ok
}

// fakeProbe implements ProcessProbe.
type fakeProbe struct {
	mu      sync.Mutex
	running bool
	delay   time.Duration // simulated process table scan
}

func (p *fakeProbe) Running() bool {
	p.mu.Lock()
	running, delay := p.running, p.delay
	p.mu.Unlock()
	time.Sleep(delay)
	return running
}

func (p *fakeProbe) set(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = running
}

// fakeMetrics records what the scheduler counts.
type fakeMetrics struct {
	mu        sync.Mutex
	sent      int
	dropped   int
	updates   map[domain.UpdateKind]int
	observers int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{updates: make(map[domain.UpdateKind]int)}
}

func (m *fakeMetrics) Accrued(float64)       {}
func (m *fakeMetrics) Redirected()           {}
func (m *fakeMetrics) EffectorFailed(string) {}

func (m *fakeMetrics) Telemetry(sent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sent {
		m.sent++
	} else {
		m.dropped++
	}
}

func (m *fakeMetrics) PolicyUpdated(kind domain.UpdateKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[kind]++
}

func (m *fakeMetrics) Observers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = n
}

var errGone = errors.New("observer gone")
