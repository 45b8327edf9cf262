package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/RamXX/plansync/internal/lock"
	"github.com/RamXX/plansync/internal/model"
)

// Fixed names inside a plansync root.
const (
	ConfigFile   = "config.yaml"
	VisionsDir   = "visions"
	EpicsDir     = "epics"
	PlansDir     = "plans"
	LogsDir      = "logs"
	RoadmapsDir  = "roadmaps"
	StateDir     = "state"
	VisionFile   = "VISION.json"
	EpicFile     = "EPIC.json"
	RoadmapFile  = "ROADMAP.json"
	PlanFile     = "PROGRESS.json"
	RegistryFile = "VISION_REGISTRY.json"
	LedgerFile   = "orchestrator-state.json"
)

// VisionIndex is kept in step with vision saves and deletes. The registry
// implements it.
type VisionIndex interface {
	Upsert(v *model.Vision) error
	Remove(slug string) error
}

// Store reads and writes the JSON document tree under a plansync root.
type Store struct {
	dir         string
	config      Config
	locker      lock.Locker
	files       *lock.FileLocker
	logger      *slog.Logger
	index       VisionIndex
	now         func() time.Time
	writeAtomic func(path string, r io.Reader) error
}

// Option customizes a Store at Open or Init.
type Option func(*Store)

// WithLogger routes store diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocker overrides the document locker chosen by lock.mode.
func WithLocker(l lock.Locker) Option { return func(s *Store) { s.locker = l } }

// WithClock sets the clock used for created/updated stamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithAtomicWriter replaces the temp-file-and-rename writer.
func WithAtomicWriter(fn func(path string, r io.Reader) error) Option {
	return func(s *Store) { s.writeAtomic = fn }
}

// Open opens an existing plansync root at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	cfg, err := loadConfig(abs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	s := &Store{
		dir:         abs,
		config:      cfg,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
		writeAtomic: atomic.WriteFile,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.files = lock.NewFileLocker(s.logger)
	s.files.Timeout = cfg.FileLockTimeout()
	s.files.PollInterval = cfg.FileLockPollInterval()
	s.files.StaleAfter = cfg.StaleAfter()
	if s.locker == nil {
		s.locker = s.defaultLocker()
	}
	return s, nil
}

// Init creates a new plansync root at dir and opens it.
func Init(dir string, opts ...Option) (*Store, error) {
	if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil {
		return nil, fmt.Errorf("%s: %w", dir, ErrExists)
	}
	for _, sub := range []string{VisionsDir, EpicsDir, PlansDir, LogsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", sub, err)
		}
	}
	if err := writeConfig(dir, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	return Open(dir, opts...)
}

func (s *Store) defaultLocker() lock.Locker {
	if s.config.Lock.Mode == LockModeMemory {
		t := lock.NewLockTable()
		t.Timeout = s.config.LockTimeout()
		t.PollInterval = s.config.LockPollInterval()
		return t
	}
	return s.files
}

// Dir returns the absolute root directory.
func (s *Store) Dir() string { return s.dir }

// Config returns the effective configuration (file plus env overrides).
func (s *Store) Config() Config { return s.config }

// Logger returns the store's logger; never nil.
func (s *Store) Logger() *slog.Logger { return s.logger }

// Locker returns the locker guarding documents.
func (s *Store) Locker() lock.Locker { return s.locker }

// FileLocker returns the cross-process locker regardless of lock.mode. The
// registry always uses it.
func (s *Store) FileLocker() *lock.FileLocker { return s.files }

// Now returns the store clock's current time in UTC.
func (s *Store) Now() time.Time { return s.now().UTC() }

// SetVisionIndex installs the hook notified on vision saves and deletes.
func (s *Store) SetVisionIndex(idx VisionIndex) { s.index = idx }

// Resolve turns a document path recorded on a parent into an absolute path.
// Relative paths are relative to the root.
func (s *Store) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.dir, filepath.FromSlash(p))
}

// Rel returns p relative to the root when p is inside it, else p unchanged.
func (s *Store) Rel(p string) string {
	abs := s.Resolve(p)
	rel, err := filepath.Rel(s.dir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.ToSlash(rel)
}

func (s *Store) VisionPath(slug string) string {
	return filepath.Join(s.dir, VisionsDir, slug, VisionFile)
}

func (s *Store) RegistryPath() string {
	return filepath.Join(s.dir, VisionsDir, RegistryFile)
}

func (s *Store) EpicPath(slug string) string {
	return filepath.Join(s.dir, EpicsDir, slug, EpicFile)
}

func (s *Store) LedgerPath(epicSlug string) string {
	return filepath.Join(s.dir, EpicsDir, epicSlug, StateDir, LedgerFile)
}

// NewRoadmapPath is where AddRoadmap places a roadmap of the given epic.
func (s *Store) NewRoadmapPath(epicSlug, slug string) string {
	return filepath.Join(s.dir, EpicsDir, epicSlug, RoadmapsDir, slug, RoadmapFile)
}

// NewPlanPath is where AddPlan places a plan.
func (s *Store) NewPlanPath(slug string) string {
	return filepath.Join(s.dir, PlansDir, slug, PlanFile)
}

// ListVisionSlugs returns the names of every vision directory.
func (s *Store) ListVisionSlugs() ([]string, error) {
	return listSubdirs(filepath.Join(s.dir, VisionsDir))
}

// ListEpicSlugs returns the names of every epic directory.
func (s *Store) ListEpicSlugs() ([]string, error) {
	return listSubdirs(filepath.Join(s.dir, EpicsDir))
}

func listSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
