package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTableTimeout      = 5 * time.Second
	DefaultTablePollInterval = 100 * time.Millisecond
)

type tableEntry struct {
	acquiredAt time.Time
	holder     string
}

// LockTable is an in-process lock keyed by file path. An entry older than
// Timeout is treated as abandoned and reclaimed by the next caller.
type LockTable struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Now          func() time.Time

	mu      sync.Mutex
	entries map[string]tableEntry
}

// NewLockTable returns a table with the default 5s timeout and 100ms poll.
func NewLockTable() *LockTable {
	return &LockTable{
		Timeout:      DefaultTableTimeout,
		PollInterval: DefaultTablePollInterval,
	}
}

func (t *LockTable) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *LockTable) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return DefaultTableTimeout
}

func (t *LockTable) poll() time.Duration {
	if t.PollInterval > 0 {
		return t.PollInterval
	}
	return DefaultTablePollInterval
}

// TryAcquire takes path for holder if it is free or abandoned.
func (t *LockTable) TryAcquire(path, holder string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries == nil {
		t.entries = make(map[string]tableEntry)
	}
	now := t.now()
	if e, ok := t.entries[path]; ok && now.Sub(e.acquiredAt) <= t.timeout() {
		return false
	}
	t.entries[path] = tableEntry{acquiredAt: now, holder: holder}
	return true
}

// Acquire polls until path is held by holder, the timeout elapses, or ctx is done.
func (t *LockTable) Acquire(ctx context.Context, path, holder string) error {
	start := t.now()
	for {
		if t.TryAcquire(path, holder) {
			return nil
		}
		if waited := t.now().Sub(start); waited >= t.timeout() {
			return &TimeoutError{Target: path, Waited: waited, Holder: t.Holder(path)}
		}
		if err := sleepCtx(ctx, t.poll()); err != nil {
			return err
		}
	}
}

// Release frees path if holder still owns it. An empty holder releases
// unconditionally. It reports whether an entry was removed.
func (t *LockTable) Release(path, holder string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[path]
	if !ok || (holder != "" && e.holder != holder) {
		return false
	}
	delete(t.entries, path)
	return true
}

// Holder returns the current holder of path, or "".
func (t *LockTable) Holder(path string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[path].holder
}

// Held reports whether path currently has a live entry.
func (t *LockTable) Held(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[path]
	return ok && t.now().Sub(e.acquiredAt) <= t.timeout()
}

// Lock implements Locker with a fresh holder id per call.
func (t *LockTable) Lock(ctx context.Context, path string) (func() error, error) {
	holder := uuid.NewString()
	if err := t.Acquire(ctx, path, holder); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() error {
		once.Do(func() { t.Release(path, holder) })
		return nil
	}, nil
}
