// Package overlay materializes projects from kernel templates.
//
// A kernel template is a base file tree plus an optional reserved directory (=environments=)
// holding one subdirectory per environment overlay. Create copies the base tree and the
// requested overlays into a new project; Upgrade refreshes a curated subset of files in an
// existing one. Copies are additive and not transactional.
//
// Loaders are chosen per kernel through a Registry: a factory registered for the kernel
// identifier wins, then a manifest shipped inside the kernel (.kernelctl.yaml), then DefaultLoader.
package overlay
