package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RamXX/plansync/internal/lock"
	"github.com/RamXX/plansync/internal/model"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Init(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func TestInitAndOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Init(dir)
	require.NoError(t, err)

	for _, sub := range []string{VisionsDir, EpicsDir, PlansDir, ConfigFile} {
		_, err := os.Stat(filepath.Join(dir, sub))
		assert.NoError(t, err, sub)
	}
	assert.Equal(t, LockModeFile, s.Config().Lock.Mode)
	assert.Same(t, s.FileLocker(), s.Locker())

	_, err = Init(dir)
	assert.ErrorIs(t, err, ErrExists)

	s2, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, s.Config(), s2.Config())
}

func TestOpenUninitialized(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(dir)
	require.NoError(t, err)

	t.Setenv("PLANSYNC_LOCK_MODE", "memory")
	t.Setenv("PLANSYNC_LOCK_TIMEOUT", "2s")
	s, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, LockModeMemory, s.Config().Lock.Mode)
	assert.Equal(t, 2*time.Second, s.Config().LockTimeout())
	_, isTable := s.Locker().(*lock.LockTable)
	assert.True(t, isTable, "memory mode should select the in-process lock table")
}

func TestConfigSetGet(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SetConfigValue("lock.stale_after", "45s"))
	got, err := s.GetConfigValue("lock.stale_after")
	require.NoError(t, err)
	assert.Equal(t, "45s", got)

	assert.Error(t, s.SetConfigValue("lock.stale_after", "soon"))
	assert.Error(t, s.SetConfigValue("lock.mode", "redis"))
	assert.Error(t, s.SetConfigValue("version", "2"))
	assert.Error(t, s.SetConfigValue("nope", "x"))

	reopened, err := Open(s.Dir())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, reopened.Config().StaleAfter())

	keys := make([]string, 0)
	for _, kv := range s.ConfigEntries() {
		keys = append(keys, kv[0])
	}
	assert.Contains(t, keys, "log.max_backups")
}

func TestConfigSetKeepsEnvOverridesOutOfFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(dir)
	require.NoError(t, err)

	t.Setenv("PLANSYNC_LOCK_TIMEOUT", "9s")
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.SetConfigValue("log.level", "debug"))

	raw, err := readRawConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Lock.Timeout, raw.Lock.Timeout)
	assert.Equal(t, "debug", raw.Log.Level)

	got, err := s.GetConfigValue("lock.timeout")
	require.NoError(t, err)
	assert.Equal(t, "9s", got)
	got, err = s.GetConfigValue("log.level")
	require.NoError(t, err)
	assert.Equal(t, "debug", got)
}

func TestVisionRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newStore(t, WithClock(func() time.Time { return at }))
	ctx := context.Background()

	v := NewVision("my-app", "My App", "ship it")
	v.OKRs = []model.Objective{{Objective: "Adoption", KeyResults: []string{"100 users"}}}
	require.NoError(t, s.SaveVision(ctx, v))
	assert.Equal(t, at, v.Created)

	got, err := s.ReadVision("my-app")
	require.NoError(t, err)
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("vision mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveVisionValidationTouchesNothing(t *testing.T) {
	s := newStore(t)
	v := NewVision("Bad Slug", "", "")
	v.OKRs = []model.Objective{{Objective: "x"}}

	err := s.SaveVision(context.Background(), v)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Problems), 3, "every problem is listed: %v", verr.Problems)

	_, statErr := os.Stat(s.VisionPath("Bad Slug"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	s := newStore(t)

	v, err := s.LoadVision("ghost")
	assert.NoError(t, err)
	assert.Nil(t, v)
	_, err = s.ReadVision("ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	path := s.VisionPath("broken")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	v, err = s.LoadVision("broken")
	assert.NoError(t, err)
	assert.Nil(t, v, "corrupt documents load as absent")
	_, err = s.ReadVision("broken")
	assert.True(t, IsCorrupt(err), "got %v", err)
}

func TestUpdateMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.UpdateEpic(context.Background(), "nope", func(*model.Epic) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateEpicConcurrent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateEpic(ctx, &model.Epic{Slug: "e", Title: "E"}))

	const n = 12
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateEpic(ctx, "e", func(e *model.Epic) error {
				e.TokenBudget.Used++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e, err := s.ReadEpic("e")
	require.NoError(t, err)
	assert.Equal(t, n, e.TokenBudget.Used, "no update may be lost")
}

func TestUpdateCallbackErrorLeavesDocument(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateEpic(ctx, &model.Epic{Slug: "e", Title: "E"}))

	boom := errors.New("boom")
	_, err := s.UpdateEpic(ctx, "e", func(e *model.Epic) error {
		e.Title = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	e, err := s.ReadEpic("e")
	require.NoError(t, err)
	assert.Equal(t, "E", e.Title)
	_, err = os.Stat(lock.LockPath(s.EpicPath("e")))
	assert.True(t, os.IsNotExist(err), "lock released on error")
}

func TestAtomicWriteFallback(t *testing.T) {
	s := newStore(t, WithAtomicWriter(func(string, io.Reader) error {
		return errors.New("rename not permitted")
	}))
	ctx := context.Background()
	require.NoError(t, s.CreateEpic(ctx, &model.Epic{Slug: "e", Title: "E"}))

	e, err := s.ReadEpic("e")
	require.NoError(t, err)
	assert.Equal(t, "E", e.Title)
}

type recordingIndex struct {
	mu       sync.Mutex
	upserted []string
	removed  []string
}

func (r *recordingIndex) Upsert(v *model.Vision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserted = append(r.upserted, v.Slug)
	return nil
}

func (r *recordingIndex) Remove(slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, slug)
	return nil
}

func TestVisionIndexHook(t *testing.T) {
	s := newStore(t)
	idx := &recordingIndex{}
	s.SetVisionIndex(idx)
	ctx := context.Background()

	require.NoError(t, s.SaveVision(ctx, NewVision("a", "A", "")))
	_, err := s.UpdateVision(ctx, "a", func(v *model.Vision) error {
		v.Status = model.VisionPlanning
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.DeleteVision(ctx, "a"))

	assert.Equal(t, []string{"a", "a"}, idx.upserted)
	assert.Equal(t, []string{"a"}, idx.removed)

	slugs, err := s.ListVisionSlugs()
	require.NoError(t, err)
	assert.Empty(t, slugs)
	assert.ErrorIs(t, s.DeleteVision(ctx, "a"), ErrNotFound)
}

func TestLedgerUpdate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	l, err := s.LoadLedger("e")
	require.NoError(t, err)
	assert.Nil(t, l)
	_, err = s.UpdateLedger(ctx, "e", func(*model.Ledger) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveLedger(ctx, &model.Ledger{EpicSlug: "e", Status: model.StatusInProgress}))
	got, err := s.UpdateLedger(ctx, "e", func(l *model.Ledger) error {
		l.ActiveRoadmaps = append(l.ActiveRoadmaps, "roadmap-0")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, got.IsActive("roadmap-0"))
	assert.FileExists(t, filepath.Join(s.Dir(), EpicsDir, "e", StateDir, LedgerFile))
}

func TestResolveRel(t *testing.T) {
	s := newStore(t)
	abs := filepath.Join(s.Dir(), "plans", "p", PlanFile)
	assert.Equal(t, "plans/p/"+PlanFile, s.Rel(abs))
	assert.Equal(t, abs, s.Resolve("plans/p/"+PlanFile))
	assert.Equal(t, "/elsewhere/x.json", s.Rel("/elsewhere/x.json"))
}
