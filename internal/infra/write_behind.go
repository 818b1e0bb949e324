package infra

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// StorageRecorder counts write outcomes. *Metrics implements it.
type StorageRecorder interface {
	StorageWritten()
	StorageFailed()
}

// WriteBehind is a domain.KVStore that queues writes and commits them to
// the backing store on its own goroutine, so callers never wait on disk.
// Only the latest value per key is kept. A failed key is logged and
// dropped; the next write of that key carries the current value anyway.
type WriteBehind struct {
	store    domain.KVStore
	recorder StorageRecorder
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string][]byte
	wake    chan struct{}
}

// NewWriteBehind wraps store. Call Run to start committing.
func NewWriteBehind(store domain.KVStore, recorder StorageRecorder, logger *zap.Logger) *WriteBehind {
	return &WriteBehind{
		store:    store,
		recorder: recorder,
		logger:   logger,
		pending:  make(map[string][]byte),
		wake:     make(chan struct{}, 1),
	}
}

// Get serves queued values first, then the backing store.
func (w *WriteBehind) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	var missing []string

	w.mu.Lock()
	for _, k := range keys {
		if v, ok := w.pending[k]; ok {
			out[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	w.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}
	stored, err := w.store.Get(ctx, missing...)
	if err != nil {
		return nil, err
	}
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

// Set queues entries and returns immediately.
func (w *WriteBehind) Set(_ context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	w.mu.Lock()
	for k, v := range entries {
		w.pending[k] = append([]byte(nil), v...)
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// OnChange registers on the backing store, so callbacks fire after commit.
func (w *WriteBehind) OnChange(fn func(key string, value []byte)) {
	w.store.OnChange(fn)
}

// Pending returns the number of keys waiting to be committed.
func (w *WriteBehind) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Run commits queued writes until ctx is cancelled, then flushes once more.
func (w *WriteBehind) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Flush(context.Background())
			return
		case <-w.wake:
			w.Flush(ctx)
		}
	}
}

// Flush commits everything queued so far, one key at a time. A batch that
// has been taken is always committed, even if ctx is cancelled meanwhile.
func (w *WriteBehind) Flush(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string][]byte)
	w.mu.Unlock()

	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := w.store.Set(ctx, map[string][]byte{k: batch[k]}); err != nil {
			w.logger.Warn("storage write failed",
				zap.String("key", k),
				zap.Error(err))
			if w.recorder != nil {
				w.recorder.StorageFailed()
			}
			continue
		}
		if w.recorder != nil {
			w.recorder.StorageWritten()
		}
	}
}

// Ensure WriteBehind implements domain.KVStore.
var _ domain.KVStore = (*WriteBehind)(nil)
