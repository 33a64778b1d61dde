// Package kernelctl resolves, fetches, and applies versioned kernel templates.
// It defines kernel identifiers, the availability record, symbolic request resolution,
// and the error taxonomy shared by the localrepo, updatesite, overlay and conductor packages.
package kernelctl
