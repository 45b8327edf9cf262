package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/RamXX/plansync/internal/lock"
)

// Lock modes accepted by lock.mode.
const (
	LockModeFile   = "file"
	LockModeMemory = "memory"
)

// EnvPrefix namespaces environment overrides, e.g. PLANSYNC_LOCK_TIMEOUT.
const EnvPrefix = "PLANSYNC"

// Config is the root-level configuration stored in config.yaml. Durations are
// kept as strings ("5s") so the file stays hand-editable.
type Config struct {
	Version string     `yaml:"version" mapstructure:"version"`
	Lock    LockConfig `yaml:"lock" mapstructure:"lock"`
	Log     LogConfig  `yaml:"log" mapstructure:"log"`
	Sync    SyncConfig `yaml:"sync" mapstructure:"sync"`
}

type LockConfig struct {
	Mode             string `yaml:"mode" mapstructure:"mode"`
	Timeout          string `yaml:"timeout" mapstructure:"timeout"`
	PollInterval     string `yaml:"poll_interval" mapstructure:"poll_interval"`
	FileTimeout      string `yaml:"file_timeout" mapstructure:"file_timeout"`
	FilePollInterval string `yaml:"file_poll_interval" mapstructure:"file_poll_interval"`
	StaleAfter       string `yaml:"stale_after" mapstructure:"stale_after"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

type SyncConfig struct {
	RetryMaxElapsed string `yaml:"retry_max_elapsed" mapstructure:"retry_max_elapsed"`
}

// DefaultConfig is what Init writes.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Lock: LockConfig{
			Mode:             LockModeFile,
			Timeout:          lock.DefaultTableTimeout.String(),
			PollInterval:     lock.DefaultTablePollInterval.String(),
			FileTimeout:      lock.DefaultFileTimeout.String(),
			FilePollInterval: lock.DefaultFilePollInterval.String(),
			StaleAfter:       lock.DefaultStaleAfter.String(),
		},
		Log: LogConfig{
			Level:      "info",
			File:       filepath.Join("logs", "plansync.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Sync: SyncConfig{RetryMaxElapsed: "30s"},
	}
}

// LockTimeout and friends parse the duration settings, falling back to the
// built-in default when a value is empty or malformed.
func (c Config) LockTimeout() time.Duration {
	return parseDuration(c.Lock.Timeout, lock.DefaultTableTimeout)
}

func (c Config) LockPollInterval() time.Duration {
	return parseDuration(c.Lock.PollInterval, lock.DefaultTablePollInterval)
}

func (c Config) FileLockTimeout() time.Duration {
	return parseDuration(c.Lock.FileTimeout, lock.DefaultFileTimeout)
}

func (c Config) FileLockPollInterval() time.Duration {
	return parseDuration(c.Lock.FilePollInterval, lock.DefaultFilePollInterval)
}

func (c Config) StaleAfter() time.Duration {
	return parseDuration(c.Lock.StaleAfter, lock.DefaultStaleAfter)
}

func (c Config) RetryMaxElapsed() time.Duration {
	return parseDuration(c.Sync.RetryMaxElapsed, 30*time.Second)
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LoadConfig reads the configuration of the root at dir without opening it.
func LoadConfig(dir string) (Config, error) { return loadConfig(dir) }

// loadConfig reads config.yaml through viper so PLANSYNC_* variables
// override file values.
func loadConfig(dir string) (Config, error) {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%s: %w", dir, ErrNotInitialized)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range configKeys {
		v.SetDefault(k.name, k.get(DefaultConfig()))
	}

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read %s: %w", ConfigFile, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", ConfigFile, err)
	}
	return cfg, nil
}

// readRawConfig decodes config.yaml alone, without environment overrides,
// over the defaults.
func readRawConfig(dir string) (Config, error) {
	path := filepath.Join(dir, ConfigFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%s: %w", dir, ErrNotInitialized)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", ConfigFile, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", ConfigFile, err)
	}
	return cfg, nil
}

func writeConfig(dir string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ConfigFile), data, 0o644)
}

type configKey struct {
	name string
	get  func(Config) string
	set  func(*Config, string) error
}

func durationKey(name string, field func(*Config) *string) configKey {
	return configKey{
		name: name,
		get:  func(c Config) string { return *field(&c) },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid duration %q for %s", v, name)
			}
			*field(c) = v
			return nil
		},
	}
}

func intKey(name string, field func(*Config) *int) configKey {
	return configKey{
		name: name,
		get:  func(c Config) string { return strconv.Itoa(*field(&c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid non-negative integer %q for %s", v, name)
			}
			*field(c) = n
			return nil
		},
	}
}

var configKeys = []configKey{
	{
		name: "version",
		get:  func(c Config) string { return c.Version },
		set:  func(*Config, string) error { return errors.New("version is read-only") },
	},
	{
		name: "lock.mode",
		get:  func(c Config) string { return c.Lock.Mode },
		set: func(c *Config, v string) error {
			switch v {
			case LockModeFile, LockModeMemory:
				c.Lock.Mode = v
				return nil
			}
			return fmt.Errorf("invalid lock.mode %q: must be %s or %s", v, LockModeFile, LockModeMemory)
		},
	},
	durationKey("lock.timeout", func(c *Config) *string { return &c.Lock.Timeout }),
	durationKey("lock.poll_interval", func(c *Config) *string { return &c.Lock.PollInterval }),
	durationKey("lock.file_timeout", func(c *Config) *string { return &c.Lock.FileTimeout }),
	durationKey("lock.file_poll_interval", func(c *Config) *string { return &c.Lock.FilePollInterval }),
	durationKey("lock.stale_after", func(c *Config) *string { return &c.Lock.StaleAfter }),
	{
		name: "log.level",
		get:  func(c Config) string { return c.Log.Level },
		set: func(c *Config, v string) error {
			switch strings.ToLower(v) {
			case "debug", "info", "warn", "error":
				c.Log.Level = strings.ToLower(v)
				return nil
			}
			return fmt.Errorf("invalid log.level %q: must be debug, info, warn or error", v)
		},
	},
	{
		name: "log.file",
		get:  func(c Config) string { return c.Log.File },
		set:  func(c *Config, v string) error { c.Log.File = v; return nil },
	},
	intKey("log.max_size_mb", func(c *Config) *int { return &c.Log.MaxSizeMB }),
	intKey("log.max_backups", func(c *Config) *int { return &c.Log.MaxBackups }),
	durationKey("sync.retry_max_elapsed", func(c *Config) *string { return &c.Sync.RetryMaxElapsed }),
}

func findConfigKey(name string) (configKey, error) {
	for _, k := range configKeys {
		if k.name == name {
			return k, nil
		}
	}
	return configKey{}, fmt.Errorf("unknown config key %q", name)
}

// SetConfigValue validates and stores a config field by dot-notation key.
// Only that key changes in config.yaml; PLANSYNC_* overrides stay out of the
// file and still win in the reloaded configuration. The new value takes
// effect for stores opened afterwards.
func (s *Store) SetConfigValue(key, value string) error {
	k, err := findConfigKey(key)
	if err != nil {
		return err
	}
	raw, err := readRawConfig(s.dir)
	if err != nil {
		return err
	}
	if err := k.set(&raw, strings.TrimSpace(value)); err != nil {
		return err
	}
	if err := writeConfig(s.dir, raw); err != nil {
		return err
	}
	cfg, err := loadConfig(s.dir)
	if err != nil {
		return err
	}
	s.config = cfg
	return nil
}

// GetConfigValue returns a config field by dot-notation key.
func (s *Store) GetConfigValue(key string) (string, error) {
	k, err := findConfigKey(key)
	if err != nil {
		return "", err
	}
	return k.get(s.config), nil
}

// ConfigEntries returns all config fields as key-value pairs for listing.
func (s *Store) ConfigEntries() [][2]string {
	out := make([][2]string, 0, len(configKeys))
	for _, k := range configKeys {
		out = append(out, [2]string{k.name, k.get(s.config)})
	}
	return out
}
