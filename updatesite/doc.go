// Package updatesite provides the update-site protocol layer: a Provider interface that can list,
// point at the latest, and fetch kernels over some transport; a Registry that picks the provider
// for a site identifier and caches the choice; and HTTPProvider, which serves the
// kernels.list / latest.kernel / {id}.zip layout. The Git transport lives in updatesite/git.
package updatesite
