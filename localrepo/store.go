package localrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/skosovsky/kernelctl"
)

// lockSuffix names the advisory lock file kept next to the repository root. It lives outside
// the root because a Git mirror reset removes files it does not track.
const lockSuffix = ".lock"

// Store is a local kernel repository rooted at a directory.
type Store struct {
	root string
	log  *zap.Logger
	mu   sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. If l is nil, the no-op logger is kept.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Store rooted at root. The directory is created lazily by Ensure, List or Lock.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root: filepath.Clean(root),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the repository root directory.
func (s *Store) Root() string { return s.root }

// Ensure creates the repository root if it does not exist.
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("%w: create repository %s: %w", kernelctl.ErrFilesystem, s.root, err)
	}
	return nil
}

// List returns the identifiers of the locally cached kernels in lexicographic order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list repository %s: %w", kernelctl.ErrFilesystem, s.root, err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := kernelctl.ValidateKernelID(e.Name()); err != nil {
			s.log.Debug("skipping repository entry", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		ids = append(ids, e.Name())
	}
	slices.Sort(ids)
	return ids, nil
}

// Path returns the template directory for id. It does not check that the directory exists.
func (s *Store) Path(id string) (string, error) {
	if err := kernelctl.ValidateKernelID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id), nil
}

// Exists reports whether id is cached locally.
func (s *Store) Exists(id string) bool {
	path, err := s.Path(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Delete removes the cached template of id. Removal is not atomic: a failure can leave
// part of the directory behind.
func (s *Store) Delete(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &kernelctl.KernelError{Kernel: id, Path: path, Err: kernelctl.ErrKernelNotFound}
		}
		return &kernelctl.KernelError{Kernel: id, Path: path, Err: fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)}
	}
	s.log.Debug("deleting kernel", zap.String("kernel", id), zap.String("path", path))
	if err := os.RemoveAll(path); err != nil {
		return &kernelctl.KernelError{Kernel: id, Path: path, Err: fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)}
	}
	return nil
}

// LockPath returns the lock file path: "<parent>/.<base>.lock".
func (s *Store) LockPath() string {
	return filepath.Join(filepath.Dir(s.root), "."+filepath.Base(s.root)+lockSuffix)
}

// Lock takes the repository's exclusive lock, waiting until it is free or ctx is done.
// The returned function releases it. Locks are advisory and shared with every process
// that uses the same root.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	f, err := os.OpenFile(s.LockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: open lock: %w", kernelctl.ErrFilesystem, err)
	}
	if err := lockFile(ctx, f); err != nil {
		_ = f.Close()
		s.mu.Unlock()
		return nil, fmt.Errorf("lock repository %s: %w", s.root, err)
	}
	var once sync.Once
	return func() error {
		var unlockErr error
		once.Do(func() {
			unlockErr = errors.Join(unlockFile(f), f.Close())
			s.mu.Unlock()
		})
		return unlockErr
	}, nil
}
