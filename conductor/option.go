package conductor

import (
	"go.uber.org/zap"

	"github.com/skosovsky/kernelctl/overlay"
	"github.com/skosovsky/kernelctl/updatesite"
)

// Option configures a Conductor.
type Option func(*Conductor)

// WithSites replaces the provider registry. Default: Git, then HTTP.
func WithSites(r *updatesite.Registry) Option {
	return func(c *Conductor) {
		if r != nil {
			c.sites = r
		}
	}
}

// WithLoaders replaces the per-kernel loader registry.
func WithLoaders(r *overlay.Registry) Option {
	return func(c *Conductor) {
		if r != nil {
			c.loaders = r
		}
	}
}

// WithLogger sets the logger passed to every component. If l is nil, the no-op logger is kept.
func WithLogger(l *zap.Logger) Option {
	return func(c *Conductor) {
		if l != nil {
			c.log = l
		}
	}
}
