// Package conductor ties settings, update sites, the local repository and project loaders
// together into the operations the command line exposes.
package conductor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/skosovsky/kernelctl"
	"github.com/skosovsky/kernelctl/localrepo"
	"github.com/skosovsky/kernelctl/overlay"
	"github.com/skosovsky/kernelctl/settings"
	"github.com/skosovsky/kernelctl/updatesite"
	"github.com/skosovsky/kernelctl/updatesite/git"
)

// Settings is the persisted configuration the Conductor reads and updates.
type Settings interface {
	UpdateSite() string
	SetUpdateSite(site string)
	SuggestUpdateSite() string
	LocalRepositoryPath() string
	SetLocalRepositoryPath(path string) error
	SuggestLocalRepositoryPath() string
	Save() error
}

var _ Settings = (*settings.Store)(nil)

// Conductor holds the per-process state shared by every operation.
type Conductor struct {
	settings Settings
	sites    *updatesite.Registry
	loaders  *overlay.Registry
	log      *zap.Logger

	// Per-invocation overrides. They shadow settings and are never saved.
	siteOverride string
	repoOverride string
}

// New creates a Conductor over st. Panics if st is nil.
func New(st Settings, opts ...Option) *Conductor {
	if st == nil {
		panic("conductor: Settings must not be nil")
	}
	c := &Conductor{settings: st, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.sites == nil {
		c.sites = updatesite.NewRegistry([]updatesite.Provider{
			git.New(git.WithLogger(c.log)),
			updatesite.NewHTTPProvider(updatesite.WithLogger(c.log)),
		}, updatesite.WithRegistryLogger(c.log))
	}
	if c.loaders == nil {
		c.loaders = overlay.NewRegistry(overlay.WithRegistryLogger(c.log))
	}
	return c
}

// UpdateSite returns the override, else the configured update site, else the suggested one.
func (c *Conductor) UpdateSite() string {
	if c.siteOverride != "" {
		return c.siteOverride
	}
	if site := c.settings.UpdateSite(); site != "" {
		return site
	}
	return c.settings.SuggestUpdateSite()
}

// SetUpdateSite changes the update site. Without persist it only applies to this Conductor;
// with persist it is written to settings and replaces any override.
func (c *Conductor) SetUpdateSite(site string, persist bool) error {
	site = strings.TrimSpace(site)
	if site == "" {
		return &kernelctl.SiteError{Site: site, Err: fmt.Errorf("%w: empty site", kernelctl.ErrNoProvider)}
	}
	c.sites.Forget(site)
	if !persist {
		c.siteOverride = site
		return nil
	}
	c.siteOverride = ""
	c.settings.SetUpdateSite(site)
	return c.settings.Save()
}

// LocalRepositoryPath returns the override, else the configured kernel directory, else the
// suggested one.
func (c *Conductor) LocalRepositoryPath() string {
	if c.repoOverride != "" {
		return c.repoOverride
	}
	if p := c.settings.LocalRepositoryPath(); p != "" {
		return p
	}
	return c.settings.SuggestLocalRepositoryPath()
}

// SetLocalRepositoryPath changes the kernel directory. Without persist it only applies to this
// Conductor; with persist it is written to settings and replaces any override.
func (c *Conductor) SetLocalRepositoryPath(path string, persist bool) error {
	if !persist {
		abs, err := settings.Absolute(path)
		if err != nil {
			return err
		}
		c.repoOverride = abs
		return nil
	}
	if err := c.settings.SetLocalRepositoryPath(path); err != nil {
		return err
	}
	c.repoOverride = ""
	return c.settings.Save()
}

// Repository returns the local kernel store.
func (c *Conductor) Repository() *localrepo.Store {
	return localrepo.New(c.LocalRepositoryPath(), localrepo.WithLogger(c.log))
}

// ResolveKernels turns req into concrete kernel identifiers within scope.
// In ScopeAll an unreachable update site degrades to local results with a warning.
func (c *Conductor) ResolveKernels(ctx context.Context, scope kernelctl.Scope, req kernelctl.Request) ([]string, error) {
	if req.Kind() == kernelctl.RequestNone {
		return nil, nil
	}
	var local []string
	if scope.IncludesLocal() {
		ids, err := c.Repository().List(ctx)
		if err != nil {
			return nil, err
		}
		local = ids
	}
	if !scope.IncludesRemote() {
		return req.Match(local), nil
	}

	if req.Kind() == kernelctl.RequestLatest {
		latest, err := c.remoteLatest(ctx)
		if err != nil {
			if !c.degrade(scope, err) {
				return nil, err
			}
			return req.Match(local), nil
		}
		return req.Match(append(req.Match(local), nonEmpty(latest)...)), nil
	}

	remote, err := c.remoteKernels(ctx)
	if err != nil {
		if !c.degrade(scope, err) {
			return nil, err
		}
		return req.Match(local), nil
	}
	return req.Match(append(local, remote...)), nil
}

// AllKernels returns where each kernel selected by req is available.
// An unreachable update site yields the local kernels with a warning.
func (c *Conductor) AllKernels(ctx context.Context, req kernelctl.Request) (kernelctl.Availabilities, error) {
	local, err := c.Repository().List(ctx)
	if err != nil {
		return nil, err
	}
	var remote []string
	if req.Kind() != kernelctl.RequestNone {
		remote, err = c.remoteKernels(ctx)
		if err != nil && !c.degrade(kernelctl.ScopeAll, err) {
			return nil, err
		}
	}
	return kernelctl.MergeAvailability(local, remote).Filter(req), nil
}

// FetchKernels downloads every kernel req selects on the update site into the local repository.
// It stops at the first failure and returns the kernels fetched so far.
func (c *Conductor) FetchKernels(ctx context.Context, req kernelctl.Request) ([]string, error) {
	res, err := c.resolveSite(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := c.ResolveKernels(ctx, kernelctl.ScopeRemote, req)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &kernelctl.KernelError{Kernel: req.String(), Site: res.Site, Err: kernelctl.ErrKernelNotFound}
	}

	repo := c.Repository()
	unlock, err := repo.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock() }()

	var fetched []string
	for _, id := range ids {
		c.log.Info("fetching kernel", zap.String("kernel", id), zap.String("site", res.Site))
		if err := res.Provider.FetchKernel(ctx, res.Site, id, repo.Root()); err != nil {
			return fetched, err
		}
		fetched = append(fetched, id)
	}
	return fetched, nil
}

// DeleteKernels removes every local kernel req selects.
func (c *Conductor) DeleteKernels(ctx context.Context, req kernelctl.Request) ([]string, error) {
	ids, err := c.ResolveKernels(ctx, kernelctl.ScopeLocal, req)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &kernelctl.KernelError{Kernel: req.String(), Path: c.LocalRepositoryPath(), Err: kernelctl.ErrKernelNotFound}
	}
	repo := c.Repository()
	unlock, err := repo.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock() }()

	var deleted []string
	for _, id := range ids {
		if err := repo.Delete(ctx, id); err != nil {
			return deleted, err
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

// CreateProject materializes projectPath from the single local kernel req selects.
func (c *Conductor) CreateProject(ctx context.Context, req kernelctl.Request, projectPath string, envs []string, force bool) (*overlay.Report, error) {
	project, err := settings.Absolute(projectPath)
	if err != nil {
		return nil, err
	}
	id, kernelDir, loader, unlock, err := c.localKernel(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock() }()

	report, err := loader.Create(ctx, kernelDir, project, envs, overlay.CreateOptions{Force: force})
	if err != nil {
		return report, &kernelctl.KernelError{Kernel: id, Path: project, Err: err}
	}
	c.warnSkipped(id, report)
	return report, nil
}

// UpgradeProject refreshes projectPath from the single local kernel req selects.
// Requested environments must be declared by the kernel. Without force the project must
// carry the kernel's upgrade marker.
func (c *Conductor) UpgradeProject(ctx context.Context, req kernelctl.Request, projectPath string, envs []string, force bool) (*overlay.Report, error) {
	project, err := settings.Absolute(projectPath)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(project); err == nil && !info.IsDir() {
		return nil, &kernelctl.KernelError{Kernel: req.String(), Path: project, Err: fmt.Errorf("%w: not a directory", kernelctl.ErrFilesystem)}
	}
	id, kernelDir, loader, unlock, err := c.localKernel(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock() }()

	declared, err := loader.Environments(kernelDir)
	if err != nil {
		return nil, &kernelctl.KernelError{Kernel: id, Path: kernelDir, Err: err}
	}
	var unknown []string
	for _, env := range envs {
		if !slices.Contains(declared, env) {
			unknown = append(unknown, env)
		}
	}
	if len(unknown) > 0 {
		return nil, &kernelctl.KernelError{
			Kernel:     id,
			Path:       kernelDir,
			Candidates: declared,
			Err:        fmt.Errorf("%w: %s", kernelctl.ErrUnknownEnvironment, strings.Join(unknown, ", ")),
		}
	}
	if !force && !loader.Upgradeable(project) {
		return nil, &kernelctl.KernelError{Kernel: id, Path: project, Err: kernelctl.ErrNotUpgradeable}
	}

	report, err := loader.Upgrade(ctx, kernelDir, project, envs)
	if err != nil {
		return report, &kernelctl.KernelError{Kernel: id, Path: project, Err: err}
	}
	return report, nil
}

// ListEnvironments returns the environments of every local kernel req selects.
func (c *Conductor) ListEnvironments(ctx context.Context, req kernelctl.Request) (map[string][]string, error) {
	ids, err := c.ResolveKernels(ctx, kernelctl.ScopeLocal, req)
	if err != nil {
		return nil, err
	}
	repo := c.Repository()
	out := make(map[string][]string, len(ids))
	for _, id := range ids {
		dir, err := repo.Path(id)
		if err != nil {
			return nil, err
		}
		envs, err := c.loaders.Lookup(id, dir).Environments(dir)
		if err != nil {
			return nil, &kernelctl.KernelError{Kernel: id, Path: dir, Err: err}
		}
		out[id] = envs
	}
	return out, nil
}

// IsUpgradeable reports whether projectPath can be upgraded with the single local kernel req selects.
func (c *Conductor) IsUpgradeable(ctx context.Context, req kernelctl.Request, projectPath string) (bool, error) {
	project, err := settings.Absolute(projectPath)
	if err != nil {
		return false, err
	}
	ids, err := c.ResolveKernels(ctx, kernelctl.ScopeLocal, req)
	if err != nil {
		return false, err
	}
	id, err := kernelctl.RequireOne(req, ids)
	if err != nil {
		return false, err
	}
	dir, err := c.Repository().Path(id)
	if err != nil {
		return false, err
	}
	return c.loaders.Lookup(id, dir).Upgradeable(project), nil
}

// localKernel resolves req to exactly one local kernel and takes the repository lock.
func (c *Conductor) localKernel(ctx context.Context, req kernelctl.Request) (string, string, overlay.Loader, func() error, error) {
	ids, err := c.ResolveKernels(ctx, kernelctl.ScopeLocal, req)
	if err != nil {
		return "", "", nil, nil, err
	}
	id, err := kernelctl.RequireOne(req, ids)
	if err != nil {
		return "", "", nil, nil, err
	}
	repo := c.Repository()
	dir, err := repo.Path(id)
	if err != nil {
		return "", "", nil, nil, err
	}
	unlock, err := repo.Lock(ctx)
	if err != nil {
		return "", "", nil, nil, err
	}
	return id, dir, c.loaders.Lookup(id, dir), unlock, nil
}

func (c *Conductor) resolveSite(ctx context.Context) (updatesite.Resolution, error) {
	return c.sites.Resolve(ctx, c.UpdateSite())
}

func (c *Conductor) remoteKernels(ctx context.Context) ([]string, error) {
	res, err := c.resolveSite(ctx)
	if err != nil {
		return nil, err
	}
	return res.Provider.ListKernels(ctx, res.Site)
}

func (c *Conductor) remoteLatest(ctx context.Context) (string, error) {
	res, err := c.resolveSite(ctx)
	if err != nil {
		return "", err
	}
	return updatesite.LatestOrMax(ctx, res.Provider, res.Site)
}

// degrade reports whether err may be answered with local data only, logging the fallback.
func (c *Conductor) degrade(scope kernelctl.Scope, err error) bool {
	if scope != kernelctl.ScopeAll || !errors.Is(err, kernelctl.ErrTransport) {
		return false
	}
	c.log.Warn("update site unavailable; using local kernels only", zap.String("site", c.UpdateSite()), zap.Error(err))
	return true
}

func (c *Conductor) warnSkipped(id string, report *overlay.Report) {
	if report == nil || len(report.Skipped) == 0 {
		return
	}
	c.log.Warn("environments not declared by kernel were not applied",
		zap.String("kernel", id), zap.Strings("environments", report.Skipped))
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
