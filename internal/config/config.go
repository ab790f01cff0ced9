// Package config loads opsync configuration from JSONC files and CLI overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	GraphURL       string   `json:"graph_url,omitempty"`
	InventoryURL   string   `json:"inventory_url,omitempty"`
	PageSize       int      `json:"page_size,omitempty"`
	StateDir       string   `json:"state_dir,omitempty"`
	StateBackend   string   `json:"state_backend,omitempty"`
	BoardField     string   `json:"board_field,omitempty"`
	BoardColumns   []string `json:"board_columns,omitempty"`
	RequestTimeout Duration `json:"request_timeout,omitempty"`
	LogLevel       string   `json:"log_level,omitempty"`

	// Resolved (computed, not serialized)
	EffectiveCwd string `json:"-"`
	StateDirAbs  string `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// Duration is a time.Duration that reads and writes Go duration strings ("15s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string

	err := json.Unmarshal(data, &s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"15s\": %w", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults.
const (
	DefaultPageSize       = 25
	DefaultStateDir       = ".opsync"
	DefaultStateBackend   = "file"
	DefaultBoardField     = "status"
	DefaultRequestTimeout = 15 * time.Second
	DefaultLogLevel       = "warn"

	maxPageSize = 500
)

// FileName is the project config file name.
const FileName = ".opsync.json"

// Default returns the default configuration.
func Default() Config {
	return Config{
		PageSize:       DefaultPageSize,
		StateDir:       DefaultStateDir,
		StateBackend:   DefaultStateBackend,
		BoardField:     DefaultBoardField,
		RequestTimeout: Duration(DefaultRequestTimeout),
		LogLevel:       DefaultLogLevel,
	}
}

// globalPath returns $XDG_CONFIG_HOME/opsync/config.json, falling back to
// ~/.config/opsync/config.json. Empty if neither variable is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "opsync", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "opsync", "config.json")
	}

	return ""
}

// Overrides are CLI flag values. Empty fields do not override.
type Overrides struct {
	GraphURL     string
	InventoryURL string
	StateBackend string
	PageSize     int
	LogLevel     string
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Overrides         // CLI flags
	Env             map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/opsync/config.json)
// 3. Project config file (.opsync.json, if it exists)
// 4. Explicit config file via ConfigPath (replaces 3, must exist)
// 5. CLI overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		globalCfg, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
			cfg = merge(cfg, globalCfg)
		}
	}

	projectCfg, projectPath, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = merge(cfg, projectCfg)
	cfg = applyOverrides(cfg, input.Overrides)

	err = Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.StateDir) {
		cfg.StateDirAbs = cfg.StateDir
	} else {
		cfg.StateDirAbs = filepath.Join(workDir, cfg.StateDir)
	}

	return cfg, nil
}

func loadProject(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		path := filepath.Join(workDir, FileName)

		cfg, loaded, err := loadFile(path, false)
		if err != nil || !loaded {
			return Config{}, "", err
		}

		return cfg, path, nil
	}

	path := configPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	_, statErr := os.Stat(path)
	if statErr != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrFileNotFound, configPath)
	}

	cfg, _, err := loadFile(path, true)
	if err != nil {
		return Config{}, "", err
	}

	return cfg, path, nil
}

// loadFile reads a config file. If mustExist is false, a missing file returns
// a zero config and loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", ErrFileRead, path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
	}

	return cfg, true, nil
}

// Parse decodes a JSONC document. Comments and trailing commas are allowed;
// unknown keys are rejected. An explicitly empty state_dir is an error.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	dec := json.NewDecoder(strings.NewReader(string(standardized)))
	dec.DisallowUnknownFields()

	err = dec.Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if val, exists := raw["state_dir"]; exists {
		if str, ok := val.(string); ok && str == "" {
			return Config{}, ErrStateDirEmpty
		}
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.GraphURL != "" {
		base.GraphURL = overlay.GraphURL
	}

	if overlay.InventoryURL != "" {
		base.InventoryURL = overlay.InventoryURL
	}

	if overlay.PageSize != 0 {
		base.PageSize = overlay.PageSize
	}

	if overlay.StateDir != "" {
		base.StateDir = overlay.StateDir
	}

	if overlay.StateBackend != "" {
		base.StateBackend = overlay.StateBackend
	}

	if overlay.BoardField != "" {
		base.BoardField = overlay.BoardField
	}

	if overlay.BoardColumns != nil {
		base.BoardColumns = overlay.BoardColumns
	}

	if overlay.RequestTimeout != 0 {
		base.RequestTimeout = overlay.RequestTimeout
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

func applyOverrides(cfg Config, o Overrides) Config {
	return merge(cfg, Config{
		GraphURL:     o.GraphURL,
		InventoryURL: o.InventoryURL,
		StateBackend: o.StateBackend,
		PageSize:     o.PageSize,
		LogLevel:     o.LogLevel,
	})
}

// Validate checks value ranges.
func Validate(cfg Config) error {
	var errs []error

	if cfg.PageSize < 1 || cfg.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("%w (got %d)", ErrPageSize, cfg.PageSize))
	}

	if cfg.StateDir == "" {
		errs = append(errs, ErrStateDirEmpty)
	}

	switch cfg.StateBackend {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("%w (got %q)", ErrBackend, cfg.StateBackend))
	}

	if cfg.BoardField == "" {
		errs = append(errs, ErrBoardFieldName)
	}

	if cfg.RequestTimeout <= 0 {
		errs = append(errs, ErrTimeout)
	}

	_, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w (got %q)", ErrLogLevel, s)
	}
}
