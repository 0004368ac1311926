// Package changes derives the changelog and version bump of a draft version
// from its mapping against the live version.
//
// A ChangeSet is a read-only view over a mapping.Result. It is recomputed on
// demand and never stored on its own. Its canonical JSON encoding is
// byte-identical for equal inputs, so reports can be diffed and hashed.
package changes
