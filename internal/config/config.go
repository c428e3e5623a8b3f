// Package config resolves asciicanvas configuration from JSONC files, the
// environment and command line overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/asciicanvas/pkg/canvas"
	"github.com/calvinalkan/asciicanvas/pkg/canvas/store"
)

var (
	ErrConfigInvalid      = errors.New("invalid config")
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrDocumentEmpty      = errors.New("document cannot be empty")
	ErrDocumentDirEmpty   = errors.New("document_dir cannot be empty")
	ErrInvalidBackend     = errors.New("unknown backend")
	ErrInvalidInterval    = errors.New("checkpoint_interval must be positive")
	ErrInvalidUndoLimit   = errors.New("undo_limit cannot be negative")
	ErrInvalidLogLevel    = errors.New("unknown log_level")
)

// FileName is the project config file looked up in the working directory.
const FileName = ".asciicanvas.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DocumentDir        string `json:"document_dir"`
	Document           string `json:"document"`
	Backend            string `json:"backend"`
	CheckpointInterval int    `json:"checkpoint_interval"`
	UndoLimit          int    `json:"undo_limit"`
	LogLevel           string `json:"log_level"`

	// Resolved (computed, not serialized)
	EffectiveCwd string  `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DocumentPath string  `json:"-"` // Absolute path to the document file
	Sources      Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// fileConfig is one config file. Pointers distinguish "absent" from zero so
// that undo_limit: 0 can override a non-zero default.
type fileConfig struct {
	DocumentDir        *string `json:"document_dir"`
	Document           *string `json:"document"`
	Backend            *string `json:"backend"`
	CheckpointInterval *int    `json:"checkpoint_interval"`
	UndoLimit          *int    `json:"undo_limit"`
	LogLevel           *string `json:"log_level"`
}

// Overrides are command line values. Empty strings and nil pointers mean
// "not given".
type Overrides struct {
	DocumentDir        string
	Document           string
	Backend            string
	CheckpointInterval *int
	UndoLimit          *int
	LogLevel           string
}

// Default returns the default configuration. The document directory is
// ~/AsciiCanvas when HOME is known.
func Default(env map[string]string) Config {
	dir := "AsciiCanvas"
	if home := env["HOME"]; home != "" {
		dir = filepath.Join(home, "AsciiCanvas")
	}

	return Config{
		DocumentDir:        dir,
		Document:           "mydoc.asciicanvas",
		Backend:            store.BackendSQLite,
		CheckpointInterval: canvas.DefaultCheckpointInterval,
		UndoLimit:          canvas.DefaultUndoLimit,
		LogLevel:           zerolog.WarnLevel.String(),
	}
}

// globalPath returns $XDG_CONFIG_HOME/asciicanvas/config.json, falling back
// to ~/.config. Empty when neither is known.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "asciicanvas", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "asciicanvas", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Overrides         // remaining flag values
	Env             map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file (.asciicanvas.json, if it exists)
// 4. Explicit config file via ConfigPath (replaces 3)
// 5. Command line overrides.
//
// The returned DocumentPath is absolute.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default(input.Env)

	if path := globalPath(input.Env); path != "" {
		fc, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
			cfg = merge(cfg, fc)
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true

		_, statErr := os.Stat(projectPath)
		if statErr != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}
	}

	fc, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
		cfg = merge(cfg, fc)
	}

	cfg = applyOverrides(cfg, input.Overrides)

	err = Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir
	cfg.DocumentDir = expandHome(cfg.DocumentDir, input.Env)

	if !filepath.IsAbs(cfg.DocumentDir) {
		cfg.DocumentDir = filepath.Join(workDir, cfg.DocumentDir)
	}

	cfg.DocumentPath = cfg.Document
	if !filepath.IsAbs(cfg.DocumentPath) {
		cfg.DocumentPath = filepath.Join(cfg.DocumentDir, cfg.DocumentPath)
	}

	return cfg, nil
}

// loadFile reads one config file. Missing optional files report loaded=false.
func loadFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if mustExist {
			return fileConfig{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return fileConfig{}, false, nil
	}

	fc, err := parse(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if fc.Document != nil && *fc.Document == "" {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrDocumentEmpty)
	}

	if fc.DocumentDir != nil && *fc.DocumentDir == "" {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrDocumentDirEmpty)
	}

	return fc, true, nil
}

func parse(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	err = dec.Decode(&fc)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return fc, nil
}

func merge(base Config, overlay fileConfig) Config {
	if overlay.DocumentDir != nil {
		base.DocumentDir = *overlay.DocumentDir
	}

	if overlay.Document != nil {
		base.Document = *overlay.Document
	}

	if overlay.Backend != nil {
		base.Backend = *overlay.Backend
	}

	if overlay.CheckpointInterval != nil {
		base.CheckpointInterval = *overlay.CheckpointInterval
	}

	if overlay.UndoLimit != nil {
		base.UndoLimit = *overlay.UndoLimit
	}

	if overlay.LogLevel != nil {
		base.LogLevel = *overlay.LogLevel
	}

	return base
}

func applyOverrides(cfg Config, o Overrides) Config {
	if o.DocumentDir != "" {
		cfg.DocumentDir = o.DocumentDir
	}

	if o.Document != "" {
		cfg.Document = o.Document
	}

	if o.Backend != "" {
		cfg.Backend = o.Backend
	}

	if o.CheckpointInterval != nil {
		cfg.CheckpointInterval = *o.CheckpointInterval
	}

	if o.UndoLimit != nil {
		cfg.UndoLimit = *o.UndoLimit
	}

	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}

	return cfg
}

// Validate checks a resolved configuration.
func Validate(cfg Config) error {
	if cfg.Document == "" {
		return ErrDocumentEmpty
	}

	if cfg.DocumentDir == "" {
		return ErrDocumentDirEmpty
	}

	_, err := store.New(cfg.Backend, cfg.Document)
	if errors.Is(err, store.ErrUnknownBackend) {
		return fmt.Errorf("%w: %q (have %s)", ErrInvalidBackend, cfg.Backend, strings.Join(store.Backends(), ", "))
	}

	if cfg.CheckpointInterval <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, cfg.CheckpointInterval)
	}

	if cfg.UndoLimit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUndoLimit, cfg.UndoLimit)
	}

	_, err = zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
	}

	return nil
}

// Level returns the configured zerolog level. Call after Validate.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.WarnLevel
	}

	return lvl
}

// Format returns the serializable part of cfg as indented JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}

func expandHome(path string, env map[string]string) string {
	home := env["HOME"]
	if home == "" {
		return path
	}

	if path == "~" {
		return home
	}

	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}

	return path
}
