package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/roach88/flowledger/internal/compiler"
	"github.com/roach88/flowledger/internal/config"
	"github.com/roach88/flowledger/internal/event"
	"github.com/roach88/flowledger/internal/ir"
	"github.com/roach88/flowledger/internal/query"
	"github.com/roach88/flowledger/internal/store"
)

// loadConfig reads --config, or builds a config around --db when no file
// is given.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.Config != "" {
		c, err := config.ReadFromFile(opts.Config)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read config", err)
		}
		cfg = c
	} else {
		cfg = &config.Config{Database: config.DatabaseConfig{Type: "memory"}}
	}

	if opts.Database != "" {
		cfg.Database.Type = "sqlite"
		cfg.Database.Path = opts.Database
	}
	return cfg, nil
}

// logConfig returns the log section of the config, if any.
func logConfig(opts *RootOptions) (config.LogConfig, error) {
	if opts.Config == "" {
		return config.LogConfig{}, nil
	}
	// init creates the file.
	if _, err := os.Stat(opts.Config); errors.Is(err, fs.ErrNotExist) {
		return config.LogConfig{}, nil
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return config.LogConfig{}, err
	}
	return cfg.Log, nil
}

// openStore opens the configured store. A command that reads history
// needs a persistent database.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Database.Type != "sqlite" {
		return nil, NewExitError(ExitCommandError, "no database: pass --db or a --config with a sqlite database")
	}
	storeOpts, err := cfg.StoreOptions()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid database configuration", err)
	}
	st, err := store.Open(cfg.StorePath(), storeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// openProfile compiles the configured board profile, or --profile when set.
func openProfile(cfg *config.Config, override string) (ir.BoardProfile, error) {
	path := cfg.ProfilePath
	if override != "" {
		path = override
	}
	p, err := compiler.LoadProfile(path)
	if err != nil {
		return ir.BoardProfile{}, WrapExitError(ExitCommandError, "failed to load profile", err)
	}
	return p, nil
}

// session bundles what read commands need.
type session struct {
	cfg     *config.Config
	store   *store.Store
	profile ir.BoardProfile
}

func openSession(opts *RootOptions, profileOverride string) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	profile, err := openProfile(cfg, profileOverride)
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, store: st, profile: profile}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// timeline opens a board, mapping a missing board to a command error.
func (s *session) timeline(ctx context.Context, board string) (*query.Timeline, error) {
	tl, err := query.Open(ctx, s.store, board)
	if errors.Is(err, query.ErrBoardNotFound) {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("board %s has not been refreshed", board), err)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open board", err)
	}
	return tl, nil
}

// analyticsError maps analytics failures to exit errors.
func analyticsError(what string, err error) error {
	if query.IsValidationError(err) {
		return WrapExitError(ExitFailure, what, err)
	}
	return WrapExitError(ExitCommandError, what, err)
}

// parseTime accepts an upstream timestamp, RFC 3339, or a date.
func parseTime(s string) (time.Time, error) {
	if t, err := event.ParseTime(s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
}

// timeRange parses --from/--to, defaulting to the window days before now.
func timeRange(from, to string, window time.Duration, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC().Truncate(time.Millisecond)
	if to != "" {
		t, err := parseTime(to)
		if err != nil {
			return time.Time{}, time.Time{}, WrapExitError(ExitCommandError, "invalid --to", err)
		}
		end = t
	}
	start := end.Add(-window)
	if from != "" {
		t, err := parseTime(from)
		if err != nil {
			return time.Time{}, time.Time{}, WrapExitError(ExitCommandError, "invalid --from", err)
		}
		start = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, NewExitError(ExitCommandError, "--from is after --to")
	}
	return start, end, nil
}

// openRange parses optional --from/--to bounds covering all of history
// when absent.
func openRange(from, to string) (time.Time, time.Time, error) {
	start, end := time.Time{}, query.Forever
	if from != "" {
		t, err := parseTime(from)
		if err != nil {
			return time.Time{}, time.Time{}, WrapExitError(ExitCommandError, "invalid --from", err)
		}
		start = t
	}
	if to != "" {
		t, err := parseTime(to)
		if err != nil {
			return time.Time{}, time.Time{}, WrapExitError(ExitCommandError, "invalid --to", err)
		}
		end = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, NewExitError(ExitCommandError, "--from is after --to")
	}
	return start, end, nil
}

// splitNames parses a comma separated list of list names.
func splitNames(s string) []string {
	var out []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// formatTime renders an instant for text output.
func formatTime(t time.Time) string {
	return event.FormatTime(t)
}
