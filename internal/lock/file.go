package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	DefaultFileTimeout      = 10 * time.Second
	DefaultFilePollInterval = 150 * time.Millisecond
	DefaultStaleAfter       = 30 * time.Second

	// Suffix is appended to a target path to name its lease file.
	Suffix = ".lock"

	guardFileName = ".lockguard"
	tmpMarker     = ".tmp."
)

// Lease is the JSON body of a lease file.
type Lease struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	Target     string    `json:"target"`
	Token      string    `json:"token,omitempty"`
	Host       string    `json:"host,omitempty"`
}

// LockPath returns the lease file path guarding target.
func LockPath(target string) string { return target + Suffix }

// FileLocker hands out cross-process leases. A lease file is stale when it is
// older than StaleAfter, when its owner process is gone, or when it cannot be
// parsed; stale leases are deleted and acquisition retried.
type FileLocker struct {
	Timeout      time.Duration
	PollInterval time.Duration
	StaleAfter   time.Duration
	Now          func() time.Time
	Alive        func(pid int) bool
	Logger       *slog.Logger
}

// NewFileLocker returns a locker with the default 10s timeout, 150ms poll and
// 30s staleness window.
func NewFileLocker(logger *slog.Logger) *FileLocker {
	return &FileLocker{
		Timeout:      DefaultFileTimeout,
		PollInterval: DefaultFilePollInterval,
		StaleAfter:   DefaultStaleAfter,
		Logger:       logger,
	}
}

func (l *FileLocker) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *FileLocker) timeout() time.Duration {
	if l.Timeout > 0 {
		return l.Timeout
	}
	return DefaultFileTimeout
}

func (l *FileLocker) poll() time.Duration {
	if l.PollInterval > 0 {
		return l.PollInterval
	}
	return DefaultFilePollInterval
}

func (l *FileLocker) staleAfter() time.Duration {
	if l.StaleAfter > 0 {
		return l.StaleAfter
	}
	return DefaultStaleAfter
}

func (l *FileLocker) alive(pid int) bool {
	if l.Alive != nil {
		return l.Alive(pid)
	}
	return processAlive(pid)
}

func (l *FileLocker) log() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Handle is a held lease.
type Handle struct {
	locker   *FileLocker
	target   string
	lockPath string
	token    string
	once     sync.Once
	err      error
}

// Target returns the guarded document path.
func (h *Handle) Target() string { return h.target }

// Acquire blocks until target's lease is created by this call.
func (l *FileLocker) Acquire(ctx context.Context, target string) (*Handle, error) {
	lockPath := LockPath(target)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("lock dir for %s: %w", target, err)
	}
	host, _ := os.Hostname()

	start := l.now()
	for {
		lease := Lease{
			PID:        os.Getpid(),
			AcquiredAt: l.now().UTC(),
			Target:     target,
			Token:      uuid.NewString(),
			Host:       host,
		}
		created, err := createLease(lockPath, &lease)
		if err != nil {
			return nil, fmt.Errorf("create lease %s: %w", lockPath, err)
		}
		if created {
			return &Handle{locker: l, target: target, lockPath: lockPath, token: lease.Token}, nil
		}

		outcome, err := l.reclaimIfStale(ctx, lockPath)
		if err != nil {
			l.log().Warn("stale lease check failed", "lock", lockPath, "err", err)
		}
		if outcome != leaseLive {
			continue
		}

		if waited := l.now().Sub(start); waited >= l.timeout() {
			holder := ""
			if cur, err := ReadLease(lockPath); err == nil {
				holder = fmt.Sprintf("pid %d", cur.PID)
			}
			return nil, &TimeoutError{Target: target, Waited: waited, Holder: holder}
		}
		if err := sleepCtx(ctx, l.poll()); err != nil {
			return nil, err
		}
	}
}

// Lock implements Locker.
func (l *FileLocker) Lock(ctx context.Context, path string) (func() error, error) {
	h, err := l.Acquire(ctx, path)
	if err != nil {
		return nil, err
	}
	return h.Release, nil
}

// Release deletes the lease if it is still ours. A lease that was already
// removed, or reclaimed and re-issued to someone else, counts as released.
func (h *Handle) Release() error {
	h.once.Do(func() {
		cur, err := ReadLease(h.lockPath)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err == nil && cur.Token != "" && cur.Token != h.token {
			h.locker.log().Warn("lease was reclaimed before release", "lock", h.lockPath, "owner_pid", cur.PID)
			return
		}
		if err := os.Remove(h.lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.err = err
		}
	})
	return h.err
}

// createLease writes the body to a temp file and hard-links it into place so
// the lease never exists without its body. Filesystems without hard links
// fall back to an exclusive create.
func createLease(lockPath string, lease *Lease) (bool, error) {
	data, err := json.Marshal(lease)
	if err != nil {
		return false, err
	}
	tmp := lockPath + tmpMarker + lease.Token[:8]
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, err
	}
	defer os.Remove(tmp)

	err = os.Link(tmp, lockPath)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		_ = os.Remove(lockPath)
		return false, werr
	}
	return true, cerr
}

// ReadLease parses the lease file at lockPath.
func ReadLease(lockPath string) (*Lease, error) {
	f, err := os.Open(lockPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, 64<<10))
	if err != nil {
		return nil, err
	}
	var lease Lease
	if err := json.Unmarshal(data, &lease); err != nil {
		return nil, fmt.Errorf("corrupt lease %s: %w", lockPath, err)
	}
	if lease.AcquiredAt.IsZero() {
		return nil, fmt.Errorf("corrupt lease %s: missing acquired_at", lockPath)
	}
	return &lease, nil
}

// Staleness explains a stale verdict; Reason is empty for live leases.
type Staleness struct {
	Stale  bool
	Reason string
}

// Judge decides whether a lease (or the error from reading it) is stale.
func (l *FileLocker) Judge(lease *Lease, readErr error) Staleness {
	if readErr != nil {
		return Staleness{Stale: true, Reason: "unreadable"}
	}
	if age := l.now().Sub(lease.AcquiredAt); age > l.staleAfter() {
		return Staleness{Stale: true, Reason: fmt.Sprintf("expired (%v old)", age.Round(time.Second))}
	}
	host, _ := os.Hostname()
	if lease.Host == "" || lease.Host == host {
		if !l.alive(lease.PID) {
			return Staleness{Stale: true, Reason: fmt.Sprintf("owner pid %d is gone", lease.PID)}
		}
	}
	return Staleness{}
}

type reclaimOutcome int

const (
	leaseLive reclaimOutcome = iota
	leaseGone
	leaseRemoved
)

// reclaimIfStale deletes lockPath when it is stale. Inspection and removal
// run under a directory-wide flock so two reclaimers never delete each
// other's fresh lease.
func (l *FileLocker) reclaimIfStale(ctx context.Context, lockPath string) (reclaimOutcome, error) {
	guard := flock.New(filepath.Join(filepath.Dir(lockPath), guardFileName))
	gctx, cancel := context.WithTimeout(ctx, l.timeout())
	defer cancel()
	locked, err := guard.TryLockContext(gctx, l.poll()/3+time.Millisecond)
	if err != nil {
		return leaseLive, fmt.Errorf("lock guard: %w", err)
	}
	if !locked {
		return leaseLive, nil
	}
	defer func() { _ = guard.Unlock() }()

	lease, err := ReadLease(lockPath)
	if errors.Is(err, fs.ErrNotExist) {
		return leaseGone, nil
	}
	verdict := l.Judge(lease, err)
	if !verdict.Stale {
		return leaseLive, nil
	}
	if err := os.Remove(lockPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return leaseGone, nil
		}
		return leaseLive, err
	}
	l.log().Info("reclaimed stale lease", "lock", lockPath, "reason", verdict.Reason)
	return leaseRemoved, nil
}

// LeaseInfo describes one lease file found by List.
type LeaseInfo struct {
	Path  string
	Lease *Lease
	Staleness
}

// Inspect reports the lease guarding target. It returns fs.ErrNotExist when
// target is not locked.
func (l *FileLocker) Inspect(target string) (*LeaseInfo, error) {
	p := LockPath(target)
	lease, err := ReadLease(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return &LeaseInfo{Path: p, Lease: lease, Staleness: l.Judge(lease, err)}, nil
}

// List returns every lease file directly inside dir.
func (l *FileLocker) List(dir string) ([]LeaseInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []LeaseInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Suffix) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		lease, rerr := ReadLease(p)
		if errors.Is(rerr, fs.ErrNotExist) {
			continue
		}
		out = append(out, LeaseInfo{Path: p, Lease: lease, Staleness: l.Judge(lease, rerr)})
	}
	return out, nil
}

// CleanStaleLocks removes every stale lease in dir, plus abandoned temp
// files older than the staleness window, and returns how many leases were
// removed. It is housekeeping only; acquisition performs its own checks.
func (l *FileLocker) CleanStaleLocks(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		p := filepath.Join(dir, name)
		switch {
		case strings.HasSuffix(name, Suffix):
			outcome, err := l.reclaimIfStale(ctx, p)
			if err != nil {
				return removed, err
			}
			if outcome == leaseRemoved {
				removed++
			}
		case strings.Contains(name, Suffix+tmpMarker):
			if info, err := e.Info(); err == nil && l.now().Sub(info.ModTime()) > l.staleAfter() {
				_ = os.Remove(p)
			}
		}
	}
	return removed, nil
}

// CleanStaleLocks sweeps dir with the default FileLocker settings.
func CleanStaleLocks(ctx context.Context, dir string) (int, error) {
	return NewFileLocker(nil).CleanStaleLocks(ctx, dir)
}
