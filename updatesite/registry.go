package updatesite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/skosovsky/kernelctl"
)

// detachCancel returns a context that is not cancelled when parent is cancelled,
// but still respects parent's deadline so a shared probe (e.g. an HTTP listing request) does not hang.
// The caller should call the returned cancel when done to release the deadline timer.
func detachCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if dl, ok := parent.Deadline(); ok {
		return context.WithDeadline(ctx, dl)
	}
	return context.WithCancel(ctx)
}

// Resolution is the provider chosen for a site, with the site rewritten to the form the
// provider expects (shorthands such as "git clone <url>" become "<url>").
type Resolution struct {
	Provider Provider
	Site     string
}

// Registry selects the provider for a site identifier. Providers are consulted in registration
// order; the first match is cached for the lifetime of the Registry.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	cache     map[string]Resolution
	sf        singleflight.Group
	log       *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger. If l is nil, the no-op logger is kept.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates a Registry holding providers in priority order.
func NewRegistry(providers []Provider, opts ...RegistryOption) *Registry {
	r := &Registry{
		cache: make(map[string]Resolution),
		log:   zap.NewNop(),
	}
	for _, p := range providers {
		r.Register(p)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends p; it is consulted after every provider registered before it.
// Panics if p is nil.
func (r *Registry) Register(p Provider) {
	if p == nil {
		panic("updatesite: Provider must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Providers returns the registered providers in order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Provider(nil), r.providers...)
}

// ClaimShorthand returns the first provider that recognizes s as one of its shorthand forms.
func (r *Registry) ClaimShorthand(s string) (Resolution, bool) {
	for _, p := range r.Providers() {
		claimer, ok := p.(ShorthandClaimer)
		if !ok {
			continue
		}
		if site, ok := claimer.ClaimShorthand(s); ok {
			return Resolution{Provider: p, Site: site}, true
		}
	}
	return Resolution{}, false
}

// Resolve returns the provider able to serve site. Shorthand forms are checked before any
// provider probes the site. Concurrent resolutions of one site share a single probe.
// Returns kernelctl.ErrNoProvider (inside a *kernelctl.SiteError) when nothing matches.
func (r *Registry) Resolve(ctx context.Context, site string) (Resolution, error) {
	site = strings.TrimSpace(site)
	if site == "" {
		return Resolution{}, &kernelctl.SiteError{Site: site, Err: fmt.Errorf("%w: empty site", kernelctl.ErrNoProvider)}
	}
	r.mu.RLock()
	res, ok := r.cache[site]
	r.mu.RUnlock()
	if ok {
		return res, nil
	}
	if ctx.Err() != nil {
		return Resolution{}, ctx.Err()
	}

	v, err, _ := r.sf.Do(site, func() (any, error) {
		probeCtx, cancel := detachCancel(ctx)
		defer cancel()
		if res, ok := r.ClaimShorthand(site); ok {
			return res, nil
		}
		for _, p := range r.Providers() {
			if p.CanHandle(probeCtx, site) {
				return Resolution{Provider: p, Site: site}, nil
			}
			r.log.Debug("provider declined site", zap.String("provider", p.Name()), zap.String("site", site))
		}
		return nil, &kernelctl.SiteError{Site: site, Err: kernelctl.ErrNoProvider}
	})
	if err != nil {
		return Resolution{}, err
	}
	res = v.(Resolution)
	r.log.Debug("resolved update site", zap.String("site", site), zap.String("provider", res.Provider.Name()))

	r.mu.Lock()
	r.cache[site] = res
	r.mu.Unlock()
	return res, nil
}

// Forget drops the cached resolution for site so the next Resolve probes again.
func (r *Registry) Forget(site string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, strings.TrimSpace(site))
}

func isNoLatest(err error) bool {
	return errors.Is(err, kernelctl.ErrNoLatestPointer)
}
