package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RamXX/plansync/internal/format"
	"github.com/RamXX/plansync/internal/logging"
	"github.com/RamXX/plansync/internal/orchestrator"
	"github.com/RamXX/plansync/internal/propagate"
	"github.com/RamXX/plansync/internal/registry"
	"github.com/RamXX/plansync/internal/store"
)

// DefaultRootName is the directory searched for when --root is not given.
const DefaultRootName = ".plansync"

var (
	rootDir string
	jsonOut bool
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:          "plansync",
	Short:        "Hierarchical plan tracking with completion propagation",
	Long:         "plansync -- visions, epics, roadmaps and plans as JSON documents, kept consistent across concurrent agents.",
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "plansync root directory (default: nearest "+DefaultRootName+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-essential output")
}

// resolveRootDir returns the root directory, walking up from the working
// directory to find .plansync.
func resolveRootDir() string {
	if rootDir != "" {
		return rootDir
	}
	if env := os.Getenv(store.EnvPrefix + "_ROOT"); env != "" {
		return env
	}
	dir, _ := os.Getwd()
	for {
		candidate := filepath.Join(dir, DefaultRootName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return DefaultRootName
}

// app is everything a command needs, opened over one root.
type app struct {
	store  *store.Store
	reg    *registry.Registry
	prop   *propagate.Propagator
	orch   *orchestrator.Orchestrator
	closer io.Closer
}

func openApp() (*app, error) {
	dir := resolveRootDir()
	cfg, err := store.LoadConfig(dir)
	if errors.Is(err, store.ErrNotInitialized) {
		return nil, fmt.Errorf("%w (run plansync init)", err)
	}
	if err != nil {
		return nil, err
	}
	logCfg := logging.Config{
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Verbose:    verbose,
	}
	if cfg.Log.File != "" {
		logCfg.File = cfg.Log.File
		if !filepath.IsAbs(logCfg.File) {
			logCfg.File = filepath.Join(dir, logCfg.File)
		}
	}
	if !quiet {
		logCfg.Stderr = os.Stderr
	}
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(dir, store.WithLogger(logger))
	if err != nil {
		closer.Close()
		return nil, err
	}
	a := &app{store: s, reg: registry.New(s), prop: propagate.New(s), closer: closer}
	a.orch = orchestrator.New(s, a.reg, a.prop)
	return a, nil
}

func (a *app) Close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

// withApp opens the root for the duration of fn.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// emit prints v as JSON under --json, otherwise runs text.
func emit(v any, text func(w io.Writer)) error {
	if jsonOut {
		return format.JSON(rootCmd.OutOrStdout(), v)
	}
	text(rootCmd.OutOrStdout())
	return nil
}

func infof(format string, args ...any) {
	if !quiet && !jsonOut {
		fmt.Fprintf(rootCmd.OutOrStdout(), format+"\n", args...)
	}
}

func errorf(format string, args ...any) {
	fmt.Fprintf(rootCmd.ErrOrStderr(), "plansync: "+format+"\n", args...)
}
