package git

import "go.uber.org/zap"

// Option configures Provider.
type Option func(*Provider)

// WithAuth sets the token for HTTPS auth (e.g. GitHub/GitLab personal access token).
// Used as BasicAuth username "x-access-token" with password token. Ignored for other transports.
func WithAuth(token string) Option {
	return func(p *Provider) {
		p.authToken = token
	}
}

// WithSignature sets the author of the commits created in the local mirror.
// Empty values keep the defaults.
func WithSignature(name, email string) Option {
	return func(p *Provider) {
		if name != "" {
			p.sigName = name
		}
		if email != "" {
			p.sigEmail = email
		}
	}
}

// WithLogger sets the logger. If l is nil, the no-op logger is kept.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}
