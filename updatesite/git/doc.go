// Package git provides an updatesite.Provider backed by a Git repository.
// The local kernel repository becomes a mirror of the remote: every fetch merges the remote
// HEAD so that the remote tree always wins. Sites are recognized by git:// or ssh:// URLs,
// scp-style addresses, paths ending in .git, and the "git clone <url>" shorthand.
package git
