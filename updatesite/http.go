package updatesite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skosovsky/kernelctl"
)

var _ Provider = (*HTTPProvider)(nil)

const (
	// ListFile is the site-relative path of the kernel listing.
	ListFile = "kernels.list"
	// LatestFile is the site-relative path of the latest kernel pointer.
	LatestFile = "latest.kernel"
)

// maxBodySize limits listing and pointer responses (1 MB).
const maxBodySize = 1 << 20

// defaultMaxArchiveSize limits kernel archives (256 MB).
const defaultMaxArchiveSize = 256 << 20

// defaultUserAgent is the User-Agent header value for HTTP requests.
const defaultUserAgent = "kernelctl/1.0"

var errNotFound = errors.New("not found")

// HTTPProvider serves kernels from a plain HTTP update site:
//
//	{site}/kernels.list   newline separated kernel identifiers
//	{site}/latest.kernel  optional, the identifier of the latest kernel
//	{site}/{id}.zip       the kernel template tree
type HTTPProvider struct {
	httpClient     *http.Client
	authToken      string
	userAgent      string
	maxArchiveSize int64
	log            *zap.Logger
}

// NewHTTPProvider creates an HTTPProvider.
func NewHTTPProvider(opts ...HTTPOption) *HTTPProvider {
	h := &HTTPProvider{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		userAgent:      defaultUserAgent,
		maxArchiveSize: defaultMaxArchiveSize,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements Provider.
func (h *HTTPProvider) Name() string { return "http" }

// CanHandle reports whether site is an http(s) URL that serves a kernel listing.
// A host that does not resolve still counts: the site has the right shape and the
// listing call reports the transport failure.
func (h *HTTPProvider) CanHandle(ctx context.Context, site string) bool {
	base, err := siteBase(site)
	if err != nil {
		return false
	}
	resp, err := h.get(ctx, base+"/"+ListFile)
	if err != nil {
		var dnsErr *net.DNSError
		return errors.As(err, &dnsErr) && dnsErr.IsNotFound
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ListKernels fetches and parses {site}/kernels.list. Invalid identifiers are logged and skipped.
func (h *HTTPProvider) ListKernels(ctx context.Context, site string) ([]string, error) {
	base, err := siteBase(site)
	if err != nil {
		return nil, &kernelctl.SiteError{Site: site, Err: fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)}
	}
	data, err := h.fetchText(ctx, base+"/"+ListFile)
	if err != nil {
		if errors.Is(err, errNotFound) {
			err = fmt.Errorf("%w: %s not found", kernelctl.ErrTransport, ListFile)
		}
		return nil, &kernelctl.SiteError{Site: site, Err: err}
	}
	ids, rejected := ParseKernelList(data)
	for _, r := range rejected {
		h.log.Warn("ignoring invalid kernel identifier in listing", zap.String("site", site), zap.String("entry", r))
	}
	return ids, nil
}

// LatestKernel returns the first non-blank line of {site}/latest.kernel.
// A missing or empty pointer yields kernelctl.ErrNoLatestPointer.
func (h *HTTPProvider) LatestKernel(ctx context.Context, site string) (string, error) {
	base, err := siteBase(site)
	if err != nil {
		return "", &kernelctl.SiteError{Site: site, Err: fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)}
	}
	data, err := h.fetchText(ctx, base+"/"+LatestFile)
	if err != nil {
		if errors.Is(err, errNotFound) {
			err = kernelctl.ErrNoLatestPointer
		}
		return "", &kernelctl.SiteError{Site: site, Err: err}
	}
	ids, rejected := ParseKernelList(data)
	if len(rejected) > 0 {
		return "", &kernelctl.SiteError{Site: site, Err: fmt.Errorf("%w: malformed %s: %q", kernelctl.ErrTransport, LatestFile, rejected[0])}
	}
	if len(ids) == 0 {
		return "", &kernelctl.SiteError{Site: site, Err: kernelctl.ErrNoLatestPointer}
	}
	return firstLine(data), nil
}

// FetchKernel downloads {site}/{id}.zip and replaces {repoRoot}/{id} with its contents.
// The archive is fully downloaded before the existing directory is removed.
func (h *HTTPProvider) FetchKernel(ctx context.Context, site, id, repoRoot string) error {
	if err := kernelctl.ValidateKernelID(id); err != nil {
		return &kernelctl.KernelError{Kernel: id, Site: site, Err: err}
	}
	base, err := siteBase(site)
	if err != nil {
		return &kernelctl.KernelError{Kernel: id, Site: site, Err: fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)}
	}
	if err := os.MkdirAll(repoRoot, 0o750); err != nil {
		return &kernelctl.KernelError{Kernel: id, Path: repoRoot, Err: fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)}
	}
	archive, err := h.download(ctx, base+"/"+url.PathEscape(id)+".zip", repoRoot, id)
	if err != nil {
		if errors.Is(err, errNotFound) {
			err = kernelctl.ErrKernelNotFound
		}
		return &kernelctl.KernelError{Kernel: id, Site: site, Err: err}
	}
	defer func() { _ = os.Remove(archive) }()

	dest := filepath.Join(repoRoot, id)
	if err := os.RemoveAll(dest); err != nil {
		return &kernelctl.KernelError{Kernel: id, Path: dest, Err: fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)}
	}
	n, err := ExtractZip(archive, dest)
	if err != nil {
		return &kernelctl.KernelError{Kernel: id, Site: site, Path: dest, Err: err}
	}
	h.log.Info("fetched kernel", zap.String("kernel", id), zap.String("site", site), zap.Int("files", n))
	return nil
}

// download streams u into a dot-prefixed temp file inside dir and returns its path.
func (h *HTTPProvider) download(ctx context.Context, u, dir, id string) (string, error) {
	resp, err := h.get(ctx, u)
	if err != nil {
		return "", fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return "", errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %s %s", kernelctl.ErrTransport, resp.Status, u)
	}
	if resp.ContentLength > h.maxArchiveSize {
		return "", fmt.Errorf("%w: archive is %d bytes, limit %d", kernelctl.ErrTransport, resp.ContentLength, h.maxArchiveSize)
	}

	f, err := os.CreateTemp(dir, "."+id+"-*.zip")
	if err != nil {
		return "", fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	name := f.Name()
	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, h.maxArchiveSize+1))
	if err != nil {
		return fail(fmt.Errorf("%w: read archive: %w", kernelctl.ErrTransport, err))
	}
	if n > h.maxArchiveSize {
		return fail(fmt.Errorf("%w: archive exceeds %d bytes", kernelctl.ErrTransport, h.maxArchiveSize))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: %w", kernelctl.ErrFilesystem, err)
	}
	return name, nil
}

func (h *HTTPProvider) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", h.userAgent)
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}
	return h.httpClient.Do(req) // #nosec G704 -- URL is the configured update site
}

func (h *HTTPProvider) fetchText(ctx context.Context, u string) ([]byte, error) {
	resp, err := h.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kernelctl.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s", kernelctl.ErrTransport, resp.Status, u)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", kernelctl.ErrTransport, err)
	}
	// Detect truncation: if more data is available, body exceeded maxBodySize.
	probe := make([]byte, 1)
	if n, _ := resp.Body.Read(probe); n > 0 {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", kernelctl.ErrTransport, maxBodySize)
	}
	return data, nil
}

func siteBase(site string) (string, error) {
	site = strings.TrimSuffix(strings.TrimSpace(site), "/")
	u, err := url.Parse(site)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	return site, nil
}

func firstLine(data []byte) string {
	for line := range strings.Lines(string(data)) {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}
