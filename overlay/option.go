package overlay

import "go.uber.org/zap"

// Option configures DefaultLoader.
type Option func(*DefaultLoader)

// WithUpgradeFiles replaces the set of kernel-relative files and directories copied on upgrade.
func WithUpgradeFiles(paths ...string) Option {
	return func(l *DefaultLoader) {
		if len(paths) > 0 {
			l.upgradeFiles = append([]string(nil), paths...)
		}
	}
}

// WithMarker sets the project-relative file whose presence makes a project upgradeable.
func WithMarker(path string) Option {
	return func(l *DefaultLoader) {
		if path != "" {
			l.marker = path
		}
	}
}

// WithPlaceholder sets the token replaced by the project name in environment overlay files.
func WithPlaceholder(token string) Option {
	return func(l *DefaultLoader) {
		if token != "" {
			l.placeholder = token
		}
	}
}

// WithEnvironmentsDir sets the name of the reserved directory holding environment overlays.
func WithEnvironmentsDir(name string) Option {
	return func(l *DefaultLoader) {
		if name != "" {
			l.envDir = name
		}
	}
}

// WithLogger sets the logger. If l is nil, the no-op logger is kept.
func WithLogger(log *zap.Logger) Option {
	return func(l *DefaultLoader) {
		if log != nil {
			l.log = log
		}
	}
}
