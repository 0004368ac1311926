// Package ir provides the canonical value layer shared by the facet model,
// the predicate IR and the change reports.
//
// This package imports nothing internal. Everything that needs a stable byte
// representation (natural keys, ChangeSet reports, predicate literals) goes
// through the types and encoders defined here.
//
// Key design constraints:
//   - NO float types in keys or literals - numbers are int64
//   - Canonical JSON follows RFC 8785 (UTF-16 key order, NFC strings)
//   - Content hashes are SHA-256 with a versioned domain prefix
package ir
