package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RamXX/plansync/internal/model"
	"github.com/RamXX/plansync/internal/store"
)

func setup(t *testing.T) (*store.Store, *Registry) {
	t.Helper()
	s, err := store.Init(t.TempDir())
	require.NoError(t, err)
	return s, New(s)
}

func create(t *testing.T, r *Registry, title string) *model.Vision {
	t.Helper()
	v, err := r.CreateVision(context.Background(), store.NewVision("", title, ""))
	require.NoError(t, err)
	return v
}

func slugsOf(entries []model.RegistryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Slug)
	}
	return out
}

func TestDuplicateRegistrationAndUniqueSlug(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	v := create(t, r, "My App")
	assert.Equal(t, "my-app", v.Slug)

	res := r.Register(ctx, store.NewVision("my-app", "Another", ""))
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrDuplicate)

	slug, err := r.UniqueSlug(ctx, "my-app")
	require.NoError(t, err)
	assert.Equal(t, "my-app-2", slug)

	v2 := create(t, r, "My App")
	assert.Equal(t, "my-app-2", v2.Slug)
}

func TestRebuildMatchesVisionFiles(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()
	for _, title := range []string{"Alpha", "Beta", "Gamma"} {
		create(t, r, title)
	}

	require.NoError(t, os.Remove(r.Path()))
	require.NoError(t, os.RemoveAll(filepath.Dir(s.VisionPath("beta"))))

	entries, err := r.List(ctx)
	require.NoError(t, err)

	want, err := s.ListVisionSlugs()
	require.NoError(t, err)
	sort.Strings(want)
	if diff := cmp.Diff(want, slugsOf(entries)); diff != "" {
		t.Errorf("rebuilt registry differs from VISION.json set (-want +got):\n%s", diff)
	}
	assert.FileExists(t, r.Path(), "rebuild writes the registry back")

	f, err := r.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, f.Metadata.RebuiltAt)
	assert.Equal(t, 2, f.Metadata.Count)
}

func TestLoadRepairsInvalidRegistry(t *testing.T) {
	_, r := setup(t)
	create(t, r, "Alpha")

	for name, body := range map[string]string{
		"garbage":        "{{{",
		"missing fields": `{"metadata":{"count":9}}`,
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(r.Path(), []byte(body), 0o644))
			entries, err := r.List(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha"}, slugsOf(entries))
		})
	}
}

func TestRebuildSkipsUnreadableVisions(t *testing.T) {
	s, r := setup(t)
	create(t, r, "Good")
	bad := s.VisionPath("bad")
	require.NoError(t, os.MkdirAll(filepath.Dir(bad), 0o755))
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	f, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.Visions, 1)
	assert.Contains(t, f.Visions, "good")
}

func TestRebuildSkipsInvalidVisions(t *testing.T) {
	s, r := setup(t)
	create(t, r, "Good")

	write := func(dir string, v *model.Vision) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		path := s.VisionPath(dir)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	write("stray", store.NewVision("elsewhere", "Moved", ""))
	broken := store.NewVision("broken", "Broken", "")
	broken.Status = "bogus"
	write("broken", broken)

	f, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.Visions, 1)
	assert.Contains(t, f.Visions, "good")
}

func TestSaveAndDeleteKeepIndexCurrent(t *testing.T) {
	s, r := setup(t)
	ctx := context.Background()
	create(t, r, "Alpha")

	_, err := s.UpdateVision(ctx, "alpha", func(v *model.Vision) error {
		v.Status = model.VisionCompleted
		v.Metadata.CompletionPercentage = 100
		return nil
	})
	require.NoError(t, err)

	e, ok, err := r.Get(ctx, "alpha")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.VisionCompleted, e.Status)
	assert.Equal(t, 100, e.CompletionPercentage)

	active, err := r.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, s.DeleteVision(ctx, "alpha"))
	_, ok, err = r.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, r.IsSlugTaken(ctx, "alpha"))
}

func TestDeregisterUnknown(t *testing.T) {
	_, r := setup(t)
	res := r.Deregister(context.Background(), "ghost")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNotRegistered)
	assert.NoError(t, r.Remove("ghost"))
}

func TestCreateVisionRollsBackReservation(t *testing.T) {
	dir := t.TempDir()
	_, err := store.Init(dir)
	require.NoError(t, err)

	calls := 0
	s, err := store.Open(dir, store.WithAtomicWriter(func(path string, _ io.Reader) error {
		calls++
		return errors.New("disk full")
	}))
	require.NoError(t, err)
	r := New(s)

	// A file where the vision directory belongs makes the document write fail.
	visionDir := filepath.Dir(s.VisionPath("doomed"))
	require.NoError(t, os.MkdirAll(filepath.Dir(visionDir), 0o755))
	require.NoError(t, os.WriteFile(visionDir, []byte("not a dir"), 0o644))

	_, err = r.CreateVision(context.Background(), store.NewVision("doomed", "Doomed", ""))
	require.Error(t, err)
	assert.Positive(t, calls)

	_, ok, err := r.Get(context.Background(), "doomed")
	require.NoError(t, err)
	assert.False(t, ok, "failed create must not leave a reservation")
}

func TestWatchFollowsExternalEdits(t *testing.T) {
	s, r := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- r.Watch(ctx, func(ev Event) {
			select {
			case events <- ev:
			default:
			}
		})
	}()

	// A second store without the registry hook plays the external writer.
	external, err := store.Open(s.Dir())
	require.NoError(t, err)

	waitFor := func(match func(Event) bool) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case ev := <-events:
				if match(ev) {
					return
				}
			case <-deadline:
				t.Fatal("timed out waiting for watch event")
			}
		}
	}

	// Give the watcher a moment to register its watches.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, external.SaveVision(ctx, store.NewVision("outside", "Outside", "")))
	waitFor(func(ev Event) bool { return ev.Slug == "outside" && !ev.Removed })
	_, ok, err := r.Get(ctx, "outside")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, os.RemoveAll(filepath.Dir(s.VisionPath("outside"))))
	waitFor(func(ev Event) bool { return ev.Slug == "outside" && ev.Removed })

	cancel()
	assert.NoError(t, <-done)
}
