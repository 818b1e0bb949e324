package infra

import (
	"context"
	"errors"
	"sync"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
	byName      map[string][]int
	findErr     error
	scans       int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		byName:      make(map[string][]int),
	}
}

func (m *mockProcessManager) FindByName(patterns ...string) ([]int, error) {
	m.scans++
	if m.findErr != nil {
		return nil, m.findErr
	}
	var pids []int
	for _, p := range patterns {
		pids = append(pids, m.byName[p]...)
	}
	return pids, nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

// memoryStore is an in-memory KVStore that can be told to fail.
type memoryStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	failKeys  map[string]bool
	sets      int
	listeners []func(string, []byte)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		data:     make(map[string][]byte),
		failKeys: make(map[string]bool),
	}
}

func (m *memoryStore) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
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

func (m *memoryStore) Set(_ context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	for k := range entries {
		if m.failKeys[k] {
			m.mu.Unlock()
			return errors.New("disk full")
		}
	}
	m.sets++
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

func (m *memoryStore) OnChange(fn func(string, []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *memoryStore) value(k string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[k]
	return string(v), ok
}

func (m *memoryStore) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// countingRecorder counts storage outcomes.
type countingRecorder struct {
	mu       sync.Mutex
	written  int
	failures int
}

func (r *countingRecorder) StorageWritten() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written++
}

func (r *countingRecorder) StorageFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *countingRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.failures
}
