// Package localrepo provides the filesystem-backed cache of downloaded kernels.
// Each kernel lives in its own directory {root}/{id}; dot-entries at the root (a Git mirror's
// .git directory, the lock file) are never kernels. Use New to create a Store; Lock serializes
// mutating operations across processes sharing the same root.
package localrepo
