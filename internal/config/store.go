package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Load when the configuration file does not exist.
var ErrNotFound = errors.New("configuration not found")

// DefaultDir returns ~/.tempoledger, or a relative directory when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tempoledger"
	}
	return filepath.Join(home, ".tempoledger")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Store loads and persists the configuration document. Every mutation goes
// through Update, which re-reads the file, applies the change and replaces
// the file atomically.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Dir returns the directory holding the document and its side files.
func (s *Store) Dir() string {
	return filepath.Dir(s.path)
}

// Load reads, normalizes and validates the document.
func (s *Store) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w at '%s': run 'tempoledger init' to create one", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("could not read config '%s': %w", s.path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse YAML from '%s': %w", s.path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config '%s': %w", s.path, err)
	}
	return &cfg, nil
}

// Save validates cfg and replaces the document with it.
func (s *Store) Save(cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cfg)
}

func (s *Store) save(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()
	sortDates(&cfg.Schedule)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.Dir(), 0o700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}

	if err := atomic.WriteFile(s.path, &buf); err != nil {
		return fmt.Errorf("could not write config '%s': %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("could not restrict config permissions: %w", err)
	}
	slog.Debug("config saved", "path", s.path)
	return nil
}

// Update runs fn against a freshly loaded document and persists the result.
// When fn or validation fails the file is left untouched.
func (s *Store) Update(fn func(*Config) error) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}
	if err := s.save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateSchedule is Update narrowed to the schedule section.
func (s *Store) UpdateSchedule(fn func(*ScheduleConfig) error) (ScheduleConfig, error) {
	cfg, err := s.Update(func(c *Config) error {
		return fn(&c.Schedule)
	})
	if err != nil {
		return ScheduleConfig{}, err
	}
	return cfg.Schedule, nil
}

// Init writes a default document unless one already exists.
func (s *Store) Init() (*Config, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		cfg, err := s.load()
		return cfg, false, err
	}
	cfg := Default()
	if err := s.save(cfg); err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func sortDates(s *ScheduleConfig) {
	sort.Strings(s.PTODays)
	sort.Strings(s.ExtraHolidays)
	sort.Strings(s.WorkingDays)
}
