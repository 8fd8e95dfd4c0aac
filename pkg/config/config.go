package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/buildinfo"
	"github.com/paulschiretz/pgl-filediff/pkg/dircache"
	"github.com/paulschiretz/pgl-filediff/pkg/filediff"
	"github.com/paulschiretz/pgl-filediff/pkg/flagparse"
	"github.com/paulschiretz/pgl-filediff/pkg/ignore"
	"github.com/paulschiretz/pgl-filediff/pkg/lockfile"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// ConfigFileName is the name of the configuration file in the sync root.
const ConfigFileName = "pgl-filediff.config.json"

// ConfigError reports a contradictory or invalid setting. It is always fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type EngineConfig struct {
	// Workers bounds the comparison and copy pools. 0 means one per CPU.
	Workers      int  `json:"workers"`
	Metrics      bool `json:"metrics"`
	BufferSizeKB int  `json:"bufferSizeKB" comment:"Size of the I/O buffer in kilobytes for copies and hashing. Default is 256 (256KB)."`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	FileName    string `json:"fileName"`
	Compression string `json:"compression"`
}

type TrashConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

type IgnoreConfig struct {
	FileName string `json:"fileName"`
	// Patterns are applied in addition to the ignore files of both roots.
	Patterns []string `json:"patterns"`
}

type SyncConfig struct {
	RetryCount       int `json:"retryCount"`
	RetryWaitSeconds int `json:"retryWaitSeconds"`
}

type RuntimeConfig struct {
	DryRun      bool
	AutoYes     bool
	CacheOnly   bool
	Preview     bool
	MetricsFile string
	// CacheRoot is the directory printed by the cache command.
	CacheRoot string
}

type Config struct {
	Version  string        `json:"version"`
	MainRoot string        `json:"-"` // Never added to config file
	SyncRoot string        `json:"-"` // Never added to config file
	Runtime  RuntimeConfig `json:"-"` // Never added to config file
	LogLevel string        `json:"logLevel"`
	Engine   EngineConfig  `json:"engine"`
	Cache    CacheConfig   `json:"cache"`
	Trash    TrashConfig   `json:"trash"`
	Ignore   IgnoreConfig  `json:"ignore"`
	Sync     SyncConfig    `json:"sync"`
}

// NewDefault returns a Config with the default values.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		MainRoot: "",     // Intentionally empty to force user configuration.
		SyncRoot: "",     // Intentionally empty to force user configuration.
		LogLevel: "info", // Default log level.
		Engine: EngineConfig{
			Workers:      0, // runtime.NumCPU()
			Metrics:      true,
			BufferSizeKB: 256,
		},
		Cache: CacheConfig{
			Enabled:     true,
			FileName:    dircache.DefaultFileName,
			Compression: dircache.CompressionNone.String(),
		},
		Trash: TrashConfig{
			Enabled: true,
			Dir:     filediff.DefaultTrashDir,
		},
		Ignore: IgnoreConfig{
			FileName: ignore.DefaultFileName,
			Patterns: []string{},
		},
		Sync: SyncConfig{
			RetryCount:       1,
			RetryWaitSeconds: 1,
		},
	}
}

// Load reads the configuration from dir, which is the sync root. A missing
// file is not an error and yields the defaults with SyncRoot set to dir.
func Load(dir string) (Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for load directory %s: %w", dir, err)
	}

	configPath := filepath.Join(absDir, ConfigFileName)
	file, err := os.Open(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := NewDefault()
			cfg.SyncRoot = absDir
			return cfg, nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", configPath)
	// Decode over the defaults so fields missing from the file keep their default.
	cfg := NewDefault()
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	cfg.SyncRoot = absDir
	cfg.Version = buildinfo.Version
	return cfg, nil
}

// Generate writes cfg into its sync root.
func Generate(cfg Config) error {
	if cfg.SyncRoot == "" {
		return fmt.Errorf("cannot generate config file: sync root is empty")
	}
	configPath := filepath.Join(cfg.SyncRoot, ConfigFileName)
	jsonData, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}
	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// Validate checks the settings and, when requireRoots is set, expands and
// cleans both root paths. Setting conflicts are returned as *ConfigError.
func (c *Config) Validate(requireRoots bool) error {
	if requireRoots {
		var err error
		if c.MainRoot, err = cleanRoot("main", c.MainRoot); err != nil {
			return err
		}
		if c.SyncRoot, err = cleanRoot("sync", c.SyncRoot); err != nil {
			return err
		}
	}

	if c.Runtime.CacheOnly && !c.Cache.Enabled {
		return configErrorf("cache", "cache-only mode requires the cache to be enabled")
	}
	if _, err := dircache.ParseCompression(c.Cache.Compression); err != nil {
		return configErrorf("cache.compression", "%v", err)
	}
	if err := validateBaseName("cache.fileName", c.Cache.FileName); err != nil {
		return err
	}
	if err := validateBaseName("ignore.fileName", c.Ignore.FileName); err != nil {
		return err
	}
	// The trash dir stays excluded from the diff even with trash disabled.
	if c.Trash.Enabled || c.Trash.Dir != "" {
		if err := validateBaseName("trash.dir", c.Trash.Dir); err != nil {
			return err
		}
	}

	if c.Engine.Workers < 0 {
		return configErrorf("engine.workers", "cannot be negative, got %d", c.Engine.Workers)
	}
	if c.Engine.BufferSizeKB <= 0 {
		return configErrorf("engine.bufferSizeKB", "must be at least 1, got %d", c.Engine.BufferSizeKB)
	}
	if c.Sync.RetryCount < 0 {
		return configErrorf("sync.retryCount", "cannot be negative, got %d", c.Sync.RetryCount)
	}
	if c.Sync.RetryWaitSeconds < 0 {
		return configErrorf("sync.retryWaitSeconds", "cannot be negative, got %d", c.Sync.RetryWaitSeconds)
	}

	if err := validateGlobPatterns("ignore.patterns", c.Ignore.Patterns); err != nil {
		return err
	}
	return nil
}

func cleanRoot(label, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%s path cannot be empty", label)
	}
	expanded, err := util.ExpandPath(p)
	if err != nil {
		return "", fmt.Errorf("could not expand %s path: %w", label, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("could not determine absolute %s path: %w", label, err)
	}
	return filepath.Clean(abs), nil
}

// validateBaseName requires a single path element.
func validateBaseName(field, name string) error {
	switch {
	case name == "":
		return configErrorf(field, "cannot be empty")
	case name == "." || name == "..":
		return configErrorf(field, "%q is not a valid name", name)
	case strings.ContainsAny(name, `/\`):
		return configErrorf(field, "%q must not contain path separators", name)
	}
	return nil
}

func validateGlobPatterns(field string, patterns []string) error {
	for _, pattern := range patterns {
		if _, err := path.Match(pattern, ""); err != nil {
			return configErrorf(field, "invalid glob pattern %q: %v", pattern, err)
		}
	}
	return nil
}

// ReservedNames returns the base names the tool itself writes into a root.
// They are never reported as changes.
func (c *Config) ReservedNames() []string {
	return []string{c.Cache.FileName, c.Ignore.FileName, ConfigFileName, lockfile.LockFileName}
}

// CompressionCodec returns the parsed cache compression. Call Validate first.
func (c *Config) CompressionCodec() dircache.Compression {
	comp, _ := dircache.ParseCompression(c.Cache.Compression)
	return comp
}

// RetryWait returns the wait between copy retries.
func (c *Config) RetryWait() time.Duration {
	return time.Duration(c.Sync.RetryWaitSeconds) * time.Second
}

// LogSummary logs the effective configuration at INFO.
func (c *Config) LogSummary() {
	logArgs := []any{
		"log_level", c.LogLevel,
		"main", c.MainRoot,
		"sync", c.SyncRoot,
		"dry_run", c.Runtime.DryRun,
		"workers", c.Engine.Workers,
		"metrics", c.Engine.Metrics,
		"buffer_size_kb", c.Engine.BufferSizeKB,
	}
	if c.Cache.Enabled {
		logArgs = append(logArgs, "cache", fmt.Sprintf("enabled (f:%s c:%s)", c.Cache.FileName, c.Cache.Compression))
	} else {
		logArgs = append(logArgs, "cache", "disabled")
	}
	if c.Trash.Enabled {
		logArgs = append(logArgs, "trash", fmt.Sprintf("enabled (d:%s)", c.Trash.Dir))
	} else {
		logArgs = append(logArgs, "trash", "disabled")
	}
	logArgs = append(logArgs, "retries", fmt.Sprintf("%d (w:%ds)", c.Sync.RetryCount, c.Sync.RetryWaitSeconds))
	if len(c.Ignore.Patterns) > 0 {
		logArgs = append(logArgs, "ignore_patterns", strings.Join(c.Ignore.Patterns, ", "))
	}
	if c.Runtime.CacheOnly {
		logArgs = append(logArgs, "cache_only", true)
	}
	if c.Runtime.MetricsFile != "" {
		logArgs = append(logArgs, "metrics_file", c.Runtime.MetricsFile)
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. setFlags contains only the flags explicitly provided by the user.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base
	// Copy so appends never alias the base slice.
	merged.Ignore.Patterns = append([]string(nil), base.Ignore.Patterns...)

	for name, value := range setFlags {
		switch name {
		case "main":
			merged.MainRoot = value.(string)
		case "sync":
			merged.SyncRoot = value.(string)
		case "root":
			merged.Runtime.CacheRoot = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "yes":
			merged.Runtime.AutoYes = value.(bool)
		case "metrics":
			merged.Engine.Metrics = value.(bool)
		case "workers":
			merged.Engine.Workers = value.(int)
		case "buffer-size-kb":
			merged.Engine.BufferSizeKB = value.(int)
		case "no-cache":
			merged.Cache.Enabled = !value.(bool)
		case "cache-only":
			merged.Runtime.CacheOnly = value.(bool)
		case "compression":
			merged.Cache.Compression = value.(string)
		case "no-trash":
			merged.Trash.Enabled = !value.(bool)
		case "retry-count":
			merged.Sync.RetryCount = value.(int)
		case "retry-wait":
			merged.Sync.RetryWaitSeconds = value.(int)
		case "metrics-file":
			merged.Runtime.MetricsFile = value.(string)
		case "preview":
			if command == flagparse.Diff {
				merged.Runtime.Preview = value.(bool)
			}
		case "ignore":
			merged.Ignore.Patterns = append(merged.Ignore.Patterns, value.([]string)...)
		case "force", "default":
			// Consumed by the init command itself.
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
