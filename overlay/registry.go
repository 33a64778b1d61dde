package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ManifestName is the file a kernel can ship at its root to tune DefaultLoader for itself.
// It is never copied into projects.
const ManifestName = ".kernelctl.yaml"

// Manifest is the kernel-shipped loader configuration. Empty fields keep the defaults.
type Manifest struct {
	EnvironmentsDir string   `yaml:"environments_dir"`
	Placeholder     string   `yaml:"placeholder"`
	Marker          string   `yaml:"marker"`
	UpgradeFiles    []string `yaml:"upgrade_files"`
}

// Options turns the manifest into DefaultLoader options.
func (m Manifest) Options() []Option {
	return []Option{
		WithEnvironmentsDir(m.EnvironmentsDir),
		WithPlaceholder(m.Placeholder),
		WithMarker(m.Marker),
		WithUpgradeFiles(m.UpgradeFiles...),
	}
}

// ReadManifest reads kernelDir's manifest. It returns fs.ErrNotExist when the kernel ships none.
// Unknown keys and paths that leave the kernel or project directory are rejected.
func ReadManifest(kernelDir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(kernelDir, ManifestName)) // #nosec G304 -- fixed name inside the kernel directory
	if err != nil {
		return m, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", ManifestName, err)
	}
	if err := m.validate(); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", ManifestName, err)
	}
	return m, nil
}

func (m Manifest) validate() error {
	check := func(key, p string) error {
		if !filepath.IsLocal(filepath.FromSlash(p)) {
			return fmt.Errorf("%s: %q is not a local relative path", key, p)
		}
		return nil
	}
	if m.EnvironmentsDir != "" {
		if err := check("environments_dir", m.EnvironmentsDir); err != nil {
			return err
		}
	}
	if m.Marker != "" {
		if err := check("marker", m.Marker); err != nil {
			return err
		}
	}
	for _, p := range m.UpgradeFiles {
		if err := check("upgrade_files", p); err != nil {
			return err
		}
	}
	return nil
}

// Factory builds the Loader for one kernel. log is never nil.
type Factory func(log *zap.Logger) Loader

// Registry maps kernel identifiers to loader factories. Lookups never fail: kernels with no
// registered factory and no manifest get the fallback DefaultLoader.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	log       *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger handed to factories. If l is nil, the no-op logger is kept.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register sets the factory for kernel, replacing any previous one. Panics if f is nil.
func (r *Registry) Register(kernel string, f Factory) {
	if f == nil {
		panic("overlay: Factory must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kernel] = f
}

// Lookup returns the loader for kernel, whose template lives at kernelDir.
// Order: registered factory, kernel manifest, DefaultLoader. A factory returning nil or an
// unreadable manifest falls through to the next step.
func (r *Registry) Lookup(kernel, kernelDir string) Loader {
	r.mu.RLock()
	f, ok := r.factories[kernel]
	r.mu.RUnlock()
	if ok {
		if l := f(r.log); l != nil {
			r.log.Debug("using registered loader", zap.String("kernel", kernel))
			return l
		}
		r.log.Debug("registered loader factory returned nil", zap.String("kernel", kernel))
	}

	m, err := ReadManifest(kernelDir)
	switch {
	case err == nil:
		r.log.Debug("using kernel manifest loader", zap.String("kernel", kernel))
		return NewDefaultLoader(append(m.Options(), WithLogger(r.log))...)
	case errors.Is(err, fs.ErrNotExist):
		r.log.Debug("no kernel-specific loader; using default", zap.String("kernel", kernel))
	default:
		r.log.Debug("ignoring kernel manifest", zap.String("kernel", kernel), zap.Error(err))
	}
	return NewDefaultLoader(WithLogger(r.log))
}
