// Package config reads and writes the flowledger TOML configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/roach88/flowledger/internal/store"
)

// Config is the on-disk configuration of a flowledger installation.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`

	// ProfilePath is a CUE board profile. Empty selects the built-in
	// profile.
	ProfilePath string `toml:"profile_path,omitempty"`

	// Boards lists the boards "refresh --all" reconciles.
	Boards []BoardConfig `toml:"boards,omitempty"`
}

// DatabaseConfig selects the timeline store. Path applies only to sqlite.
type DatabaseConfig struct {
	Type         string `toml:"type"`                    // "sqlite" or "memory"
	Path         string `toml:"path,omitempty"`          // only used for type=sqlite
	PayloadCodec string `toml:"payload_codec,omitempty"` // "zstd" (default), "lz4" or "none"
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// BoardConfig names one board and where its events come from.
type BoardConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name,omitempty"`

	// Events is a JSON file of upstream actions.
	Events string `toml:"events"`
	// Cards is a JSON file of card states used to seed a new board.
	Cards string `toml:"cards,omitempty"`
	// Dues is a JSON object mapping card ids to due dates.
	Dues string `toml:"due_dates,omitempty"`
}

// NewConfig returns a config that stores its database under baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		Database: DatabaseConfig{
			Type:         "sqlite",
			Path:         filepath.Join(baseDir, "flowledger.db"),
			PayloadCodec: "zstd",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks the tagged unions and enumerations.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for type=sqlite")
		}
	default:
		return fmt.Errorf("unknown database type: %q", c.Database.Type)
	}
	if _, err := store.ParseCodec(c.Database.PayloadCodec); err != nil {
		return fmt.Errorf("database.payload_codec: %w", err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format: %q", c.Log.Format)
	}
	seen := map[string]bool{}
	for i, b := range c.Boards {
		if b.ID == "" {
			return fmt.Errorf("boards[%d]: id is required", i)
		}
		if b.Events == "" {
			return fmt.Errorf("boards[%d]: events is required", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("boards[%d]: duplicate board id %q", i, b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

// StorePath returns the path to pass to store.Open.
func (c *Config) StorePath() string {
	if c.Database.Type == "memory" {
		return store.MemoryPath
	}
	return c.Database.Path
}

// StoreOptions returns the store options the config selects.
func (c *Config) StoreOptions() ([]store.Option, error) {
	codec, err := store.ParseCodec(c.Database.PayloadCodec)
	if err != nil {
		return nil, err
	}
	return []store.Option{store.WithPayloadCodec(codec)}, nil
}

// Board returns the configured board with the given id.
func (c *Config) Board(id string) (BoardConfig, bool) {
	for _, b := range c.Boards {
		if b.ID == id {
			return b, true
		}
	}
	return BoardConfig{}, false
}

// ParseLevel parses a log level name. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", name)
	}
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key: %s", undecoded[0])
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "memory"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path. Relative paths
// inside the file are resolved against the file's directory.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	if c.Database.Type == "sqlite" {
		c.Database.Path = abs(c.Database.Path)
	}
	c.ProfilePath = abs(c.ProfilePath)
	for i := range c.Boards {
		c.Boards[i].Events = abs(c.Boards[i].Events)
		c.Boards[i].Cards = abs(c.Boards[i].Cards)
		c.Boards[i].Dues = abs(c.Boards[i].Dues)
	}
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
