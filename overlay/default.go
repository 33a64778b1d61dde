package overlay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/skosovsky/kernelctl"
	"github.com/skosovsky/kernelctl/internal/fsutil"
)

// Defaults of DefaultLoader.
const (
	DefaultEnvironmentsDir = "=environments="
	DefaultPlaceholder     = "Default_VeX_Cortex"
	DefaultMarker          = "common.mk"
)

// DefaultUpgradeFiles are the kernel-relative paths refreshed by Upgrade.
var DefaultUpgradeFiles = []string{"common.mk", "firmware", "include/API.h"}

var _ Loader = (*DefaultLoader)(nil)

// DefaultLoader is the Loader used for every kernel that does not ship its own behavior.
type DefaultLoader struct {
	envDir       string
	placeholder  string
	marker       string
	upgradeFiles []string
	log          *zap.Logger
}

// NewDefaultLoader creates a DefaultLoader.
func NewDefaultLoader(opts ...Option) *DefaultLoader {
	l := &DefaultLoader{
		envDir:       DefaultEnvironmentsDir,
		placeholder:  DefaultPlaceholder,
		marker:       DefaultMarker,
		upgradeFiles: slices.Clone(DefaultUpgradeFiles),
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create copies the kernel's base tree into projectDir, leaving out the environments
// directory, then applies each requested environment (nil means "none").
// An existing projectDir fails with kernelctl.ErrProjectExists unless opts.Force is set.
func (l *DefaultLoader) Create(ctx context.Context, kernelDir, projectDir string, envs []string, opts CreateOptions) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkTemplate(kernelDir); err != nil {
		return nil, err
	}
	if _, err := os.Lstat(projectDir); err == nil {
		if !opts.Force {
			return nil, fmt.Errorf("%w: %s", kernelctl.ErrProjectExists, projectDir)
		}
		if contains(projectDir, kernelDir) {
			return nil, fmt.Errorf("%w: project %s holds the kernel template %s", kernelctl.ErrFilesystem, projectDir, kernelDir)
		}
		l.log.Info("removing existing project", zap.String("path", projectDir))
		if err := os.RemoveAll(projectDir); err != nil {
			return nil, fmt.Errorf("%w: clear %s: %w", kernelctl.ErrFilesystem, projectDir, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	if envs == nil {
		envs = []string{None}
	}
	l.log.Info("creating project",
		zap.String("path", projectDir), zap.String("kernel", kernelDir), zap.Strings("environments", envs))

	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	report := &Report{}
	base, err := fsutil.CopyTree(kernelDir, projectDir, fsutil.Options{
		SkipDir:  func(_ string, d fs.DirEntry) bool { return d.Name() == l.envDir },
		SkipFile: func(rel string) bool { return rel == ManifestName },
	})
	report.Written, report.Unchanged = base.Written, base.Unchanged
	if err != nil {
		return report, fmt.Errorf("%w: copy base files: %w", kernelctl.ErrFilesystem, err)
	}
	if err := l.applyEnvironments(ctx, kernelDir, projectDir, envs, report); err != nil {
		return report, err
	}
	report.normalize()
	return report, nil
}

// Upgrade refreshes the upgrade files in projectDir and re-applies environments.
// envs == nil applies none; an empty non-nil envs re-applies every environment whose
// overlay files all exist in the project already.
func (l *DefaultLoader) Upgrade(ctx context.Context, kernelDir, projectDir string, envs []string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkTemplate(kernelDir); err != nil {
		return nil, err
	}
	l.log.Info("upgrading project", zap.String("path", projectDir), zap.String("kernel", kernelDir))

	report := &Report{}
	for _, rel := range l.upgradeFiles {
		src := filepath.Join(kernelDir, filepath.FromSlash(rel))
		dst := filepath.Join(projectDir, filepath.FromSlash(rel))
		info, err := os.Stat(src)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				l.log.Debug("upgrade file missing from kernel", zap.String("file", rel))
				continue
			}
			return report, fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
		}
		if info.IsDir() {
			res, err := fsutil.CopyTree(src, dst, fsutil.Options{})
			for _, w := range res.Written {
				report.Written = append(report.Written, path.Join(rel, w))
			}
			for _, u := range res.Unchanged {
				report.Unchanged = append(report.Unchanged, path.Join(rel, u))
			}
			if err != nil {
				return report, fmt.Errorf("%w: upgrade %s: %w", kernelctl.ErrFilesystem, rel, err)
			}
			continue
		}
		written, err := fsutil.CopyFile(src, dst, nil)
		if err != nil {
			return report, fmt.Errorf("%w: upgrade %s: %w", kernelctl.ErrFilesystem, rel, err)
		}
		if written {
			report.Written = append(report.Written, rel)
		} else {
			report.Unchanged = append(report.Unchanged, rel)
		}
	}

	if envs != nil && len(envs) == 0 {
		inferred, err := l.appliedEnvironments(kernelDir, projectDir)
		if err != nil {
			return report, err
		}
		l.log.Debug("inferred environments", zap.Strings("environments", inferred))
		envs = inferred
	}
	if err := l.applyEnvironments(ctx, kernelDir, projectDir, envs, report); err != nil {
		return report, err
	}
	report.normalize()
	return report, nil
}

// Environments returns "none" plus every subdirectory of the kernel's environments directory, sorted.
func (l *DefaultLoader) Environments(kernelDir string) ([]string, error) {
	envs := []string{None}
	entries, err := os.ReadDir(filepath.Join(kernelDir, l.envDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return envs, nil
		}
		return nil, fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	for _, e := range entries {
		if e.IsDir() && e.Name() != None {
			envs = append(envs, e.Name())
		}
	}
	slices.Sort(envs)
	return envs, nil
}

// Upgradeable reports whether projectDir holds the upgrade marker file.
func (l *DefaultLoader) Upgradeable(projectDir string) bool {
	info, err := os.Stat(filepath.Join(projectDir, filepath.FromSlash(l.marker)))
	return err == nil && info.Mode().IsRegular()
}

func (l *DefaultLoader) applyEnvironments(ctx context.Context, kernelDir, projectDir string, envs []string, report *Report) error {
	available, err := l.Environments(kernelDir)
	if err != nil {
		return err
	}
	name := []byte(filepath.Base(filepath.Clean(absOrSelf(projectDir))))
	placeholder := []byte(l.placeholder)
	substitute := func(_ string, data []byte) []byte {
		if !fsutil.IsText(data) {
			return data
		}
		return bytes.ReplaceAll(data, placeholder, name)
	}

	seen := make(map[string]struct{}, len(envs))
	for _, env := range envs {
		if _, dup := seen[env]; dup || env == None {
			continue
		}
		seen[env] = struct{}{}
		if _, ok := slices.BinarySearch(available, env); !ok {
			l.log.Warn("kernel does not declare environment; skipping", zap.String("environment", env))
			report.Skipped = append(report.Skipped, env)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := fsutil.CopyTree(filepath.Join(kernelDir, l.envDir, env), projectDir, fsutil.Options{Transform: substitute})
		report.Written = append(report.Written, res.Written...)
		report.Unchanged = append(report.Unchanged, res.Unchanged...)
		if err != nil {
			return fmt.Errorf("%w: apply environment %s: %w", kernelctl.ErrFilesystem, env, err)
		}
		report.Environments = append(report.Environments, env)
		l.log.Debug("applied environment", zap.String("environment", env), zap.Int("written", len(res.Written)))
	}
	return nil
}

// appliedEnvironments returns the environments whose overlay files all exist in projectDir.
func (l *DefaultLoader) appliedEnvironments(kernelDir, projectDir string) ([]string, error) {
	available, err := l.Environments(kernelDir)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, env := range available {
		if env == None {
			continue
		}
		files, err := fsutil.Files(filepath.Join(kernelDir, l.envDir, env))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
		}
		if len(files) == 0 {
			continue
		}
		if !slices.ContainsFunc(files, func(rel string) bool {
			return !fsutil.Exists(filepath.Join(projectDir, filepath.FromSlash(rel)))
		}) {
			applied = append(applied, env)
		}
	}
	return applied, nil
}

func checkTemplate(kernelDir string) error {
	if !fsutil.IsDir(kernelDir) {
		return fmt.Errorf("%w: kernel template %s is not a directory", kernelctl.ErrFilesystem, kernelDir)
	}
	return nil
}

// contains reports whether path is dir or lies inside it.
func contains(dir, path string) bool {
	rel, err := filepath.Rel(absOrSelf(dir), absOrSelf(path))
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
