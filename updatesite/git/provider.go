package git

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"

	"github.com/skosovsky/kernelctl"
	"github.com/skosovsky/kernelctl/updatesite"
)

var (
	_ updatesite.Provider         = (*Provider)(nil)
	_ updatesite.ShorthandClaimer = (*Provider)(nil)
)

// RemoteHead is the local reference the remote HEAD is fetched into.
const RemoteHead = plumbing.ReferenceName("refs/remotes/origin/HEAD")

const shorthandPrefix = "git clone "

var (
	headRefSpec = config.RefSpec("+HEAD:" + string(RemoteHead))
	scpLike     = regexp.MustCompile(`^[\w.-]+@[\w.-]+:`)
)

// Provider serves kernels from a Git repository whose top-level directories are kernels.
type Provider struct {
	authToken string
	sigName   string
	sigEmail  string
	log       *zap.Logger
}

// New creates a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		sigName:  "kernelctl",
		sigEmail: "kernelctl@localhost",
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements updatesite.Provider.
func (p *Provider) Name() string { return "git" }

// ClaimShorthand recognizes "git clone <url>".
func (p *Provider) ClaimShorthand(s string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), shorthandPrefix)
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

// CanHandle reports whether site looks like a Git remote. It does not touch the network.
func (p *Provider) CanHandle(_ context.Context, site string) bool {
	site = strings.TrimSpace(site)
	if site == "" {
		return false
	}
	if scpLike.MatchString(site) {
		return true
	}
	u, err := url.Parse(site)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "git", "ssh", "git+ssh":
		return true
	}
	return strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), ".git")
}

// ListKernels fetches the remote HEAD into an in-memory repository and returns the
// top-level directories of its tree. An empty remote has no kernels.
func (p *Provider) ListKernels(ctx context.Context, site string) ([]string, error) {
	repo, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		return nil, &kernelctl.SiteError{Site: site, Err: fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)}
	}
	if err := p.fetch(ctx, repo, site); err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, nil
		}
		return nil, &kernelctl.SiteError{Site: site, Err: err}
	}
	ref, err := repo.Reference(RemoteHead, true)
	if err != nil {
		return nil, &kernelctl.SiteError{Site: site, Err: fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)}
	}
	ids, err := kernelsAt(repo, ref.Hash())
	if err != nil {
		return nil, &kernelctl.SiteError{Site: site, Err: fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)}
	}
	return ids, nil
}

// LatestKernel is the lexicographic maximum of ListKernels. Git sites publish no pointer.
func (p *Provider) LatestKernel(ctx context.Context, site string) (string, error) {
	ids, err := p.ListKernels(ctx, site)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", &kernelctl.SiteError{Site: site, Err: kernelctl.ErrNoLatestPointer}
	}
	return kernelctl.Latest(ids), nil
}

// FetchKernel mirrors the remote into repoRoot and checks that the kernel directory exists.
// Local modifications to tracked files are discarded.
func (p *Provider) FetchKernel(ctx context.Context, site, id, repoRoot string) error {
	if err := kernelctl.ValidateKernelID(id); err != nil {
		return &kernelctl.KernelError{Kernel: id, Site: site, Err: err}
	}
	if err := p.Mirror(ctx, site, repoRoot); err != nil {
		return &kernelctl.KernelError{Kernel: id, Site: site, Path: repoRoot, Err: err}
	}
	dir := filepath.Join(repoRoot, id)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return &kernelctl.KernelError{Kernel: id, Site: site, Path: dir, Err: kernelctl.ErrKernelNotFound}
	}
	p.log.Info("fetched kernel", zap.String("kernel", id), zap.String("site", site))
	return nil
}

// Mirror opens (or initializes) the repository at dir, fetches the remote HEAD and merges it
// so that the resulting tree equals the remote tree. History is kept: a fast-forward when the
// local HEAD is an ancestor of the remote, nothing when the trees already match, otherwise a
// commit on top of the local HEAD carrying the remote tree (a merge when the remote is new).
func (p *Provider) Mirror(ctx context.Context, site, dir string) error {
	repo, err := openOrInit(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: worktree: %w", kernelctl.ErrFilesystem, err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		if _, err := wt.Commit("Initialize kernel repository", &git.CommitOptions{
			Author:            p.signature(),
			AllowEmptyCommits: true,
		}); err != nil {
			return fmt.Errorf("%w: root commit: %w", kernelctl.ErrFilesystem, err)
		}
		head, err = repo.Head()
	}
	if err != nil {
		return fmt.Errorf("%w: head: %w", kernelctl.ErrFilesystem, err)
	}

	if err := p.fetch(ctx, repo, site); err != nil {
		return err
	}
	ref, err := repo.Reference(RemoteHead, true)
	if err != nil {
		return fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)
	}
	theirs := ref.Hash()

	ours := head.Hash()
	if ours == theirs {
		return p.reset(wt, ours)
	}
	ff, err := isAncestor(repo, ours, theirs)
	if err != nil {
		return fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	if ff {
		p.log.Debug("fast-forwarded kernel repository", zap.String("site", site), zap.Stringer("commit", theirs))
		return p.reset(wt, theirs)
	}
	same, err := sameTree(repo, ours, theirs)
	if err != nil {
		return fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	if same {
		return p.reset(wt, ours)
	}
	merged, err := isAncestor(repo, theirs, ours)
	if err != nil {
		return fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}

	// Move the branch to the remote tree, then record a commit on top of ours with that tree.
	if err := p.reset(wt, theirs); err != nil {
		return err
	}
	msg, parents := "Merge update site "+site, []plumbing.Hash{ours, theirs}
	if merged {
		msg, parents = "Restore update site tree from "+site, []plumbing.Hash{ours}
	}
	commit, err := wt.Commit(msg, &git.CommitOptions{
		Author:            p.signature(),
		AllowEmptyCommits: true,
		Parents:           parents,
	})
	if err != nil {
		return fmt.Errorf("%w: commit: %w", kernelctl.ErrFilesystem, err)
	}
	p.log.Debug("merged update site", zap.String("site", site), zap.Stringer("commit", commit))
	return nil
}

func (p *Provider) reset(wt *git.Worktree, h plumbing.Hash) error {
	if err := wt.Reset(&git.ResetOptions{Commit: h, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("%w: reset: %w", kernelctl.ErrFilesystem, err)
	}
	return nil
}

func (p *Provider) fetch(ctx context.Context, repo *git.Repository, site string) error {
	remote, err := repo.CreateRemoteAnonymous(&config.RemoteConfig{
		Name: "anonymous",
		URLs: []string{site},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)
	}
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{headRefSpec},
		Auth:     p.auth(site),
		Force:    true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: fetch: %w", kernelctl.ErrTransport, err)
	}
	return nil
}

func (p *Provider) auth(site string) transport.AuthMethod {
	if p.authToken == "" {
		return nil
	}
	if !strings.HasPrefix(site, "https://") && !strings.HasPrefix(site, "http://") {
		return nil
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: p.authToken,
	}
}

func (p *Provider) signature() *object.Signature {
	return &object.Signature{Name: p.sigName, Email: p.sigEmail, When: time.Now()}
}

func openOrInit(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return git.PlainInit(dir, false)
}

func isAncestor(repo *git.Repository, ancestor, of plumbing.Hash) (bool, error) {
	a, err := repo.CommitObject(ancestor)
	if err != nil {
		return false, err
	}
	b, err := repo.CommitObject(of)
	if err != nil {
		return false, err
	}
	return a.IsAncestor(b)
}

func sameTree(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	ca, err := repo.CommitObject(a)
	if err != nil {
		return false, err
	}
	cb, err := repo.CommitObject(b)
	if err != nil {
		return false, err
	}
	return ca.TreeHash == cb.TreeHash, nil
}

func kernelsAt(repo *git.Repository, h plumbing.Hash) ([]string, error) {
	commit, err := repo.CommitObject(h)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range tree.Entries {
		if e.Mode != filemode.Dir {
			continue
		}
		if kernelctl.ValidateKernelID(e.Name) != nil {
			continue
		}
		ids = append(ids, e.Name)
	}
	slices.Sort(ids)
	return ids, nil
}
