// Package settings persists the user's update site and local kernel repository location.
//
// The record is a JSON object (comments and trailing commas tolerated) with the keys
// "updateSite" and "kernelDirectory". Environment variables KERNELCTL_UPDATE_SITE and
// KERNELCTL_KERNEL_DIRECTORY override the file without being written back to it.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
)

// Keys of the settings record.
const (
	KeyUpdateSite      = "updateSite"
	KeyKernelDirectory = "kernelDirectory"
)

const (
	// DefaultPath is the settings file location before home expansion.
	DefaultPath = "~/.pros/cli.settings"
	// SuggestedUpdateSite is offered when no update site is configured.
	SuggestedUpdateSite = "https://raw.githubusercontent.com/purduesigbots/purdueros-kernels/master"
	// SuggestedRepository is offered when no kernel directory is configured.
	SuggestedRepository = "~/.pros/kernels"

	envPrefix = "KERNELCTL"
)

// ErrInvalid indicates an unreadable or malformed settings file.
var ErrInvalid = errors.New("settings: invalid settings file")

// Store is the settings record backed by one file.
type Store struct {
	mu     sync.Mutex
	path   string
	v      *viper.Viper
	record map[string]any
	log    *zap.Logger
}

// Option configures Load.
type Option func(*Store)

// WithLogger sets the logger. If l is nil, the no-op logger is kept.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Load reads the settings at path ("" means DefaultPath). A missing file yields an empty record.
func Load(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	s := &Store{
		path:   expanded,
		v:      viper.New(),
		record: make(map[string]any),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.v.SetEnvPrefix(envPrefix)
	s.v.SetConfigType("json")
	for key, env := range map[string]string{
		KeyUpdateSite:      envPrefix + "_UPDATE_SITE",
		KeyKernelDirectory: envPrefix + "_KERNEL_DIRECTORY",
	} {
		if err := s.v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(s.path) // #nosec G304 -- user's settings file
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.log.Debug("no settings file", zap.String("path", s.path))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, s.path, err)
	}
	stripped := jsonc.ToJSON(data)
	if len(bytes.TrimSpace(stripped)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(stripped, &s.record); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, s.path, err)
	}
	if s.record == nil {
		s.record = make(map[string]any)
		return s, nil
	}
	if err := s.v.ReadConfig(bytes.NewReader(stripped)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, s.path, err)
	}
	return s, nil
}

// Path returns the settings file path.
func (s *Store) Path() string { return s.path }

// UpdateSite returns the configured update site, or "".
func (s *Store) UpdateSite() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.v.GetString(KeyUpdateSite))
}

// SetUpdateSite changes the update site in memory. Call Save to persist it.
func (s *Store) SetUpdateSite(site string) {
	s.set(KeyUpdateSite, strings.TrimSpace(site))
}

// SuggestUpdateSite returns the site offered when none is configured.
func (s *Store) SuggestUpdateSite() string { return SuggestedUpdateSite }

// LocalRepositoryPath returns the configured kernel directory with "~" expanded, or "".
func (s *Store) LocalRepositoryPath() string {
	s.mu.Lock()
	raw := strings.TrimSpace(s.v.GetString(KeyKernelDirectory))
	s.mu.Unlock()
	if raw == "" {
		return ""
	}
	if expanded, err := homedir.Expand(raw); err == nil {
		return expanded
	}
	return raw
}

// SetLocalRepositoryPath changes the kernel directory in memory, stored as an absolute path.
// Call Save to persist it.
func (s *Store) SetLocalRepositoryPath(path string) error {
	abs, err := Absolute(path)
	if err != nil {
		return err
	}
	s.set(KeyKernelDirectory, abs)
	return nil
}

// SuggestLocalRepositoryPath returns the kernel directory offered when none is configured.
func (s *Store) SuggestLocalRepositoryPath() string {
	if expanded, err := homedir.Expand(SuggestedRepository); err == nil {
		return expanded
	}
	return SuggestedRepository
}

// Save writes the record to Path, creating parent directories. Keys this package does not
// know are preserved. Values coming from the environment are not written.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, err := os.Stat(s.path); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalid, s.path)
	}
	data, err := json.MarshalIndent(s.record, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("settings: create directory: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	s.log.Debug("saved settings", zap.String("path", s.path))
	return nil
}

func (s *Store) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record[key] = value
	s.v.Set(key, value)
}

// Absolute expands "~" and makes path absolute.
func Absolute(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("settings: empty path")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("settings: expand %q: %w", path, err)
	}
	return filepath.Abs(expanded)
}
