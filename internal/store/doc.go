// Package store provides SQLite persistence for data sets and their
// versions.
//
// The schema is managed by goose migrations embedded in the binary. Each
// version owns its facet options, its mapping against the previous live
// version, its preview tokens and one observation table named after the
// version id. Observation tables are created when a version's rows are
// written and are queried through ObservationBackend.
//
// Determinism: every multi-row read has an ORDER BY that yields a total
// order, with ids compared COLLATE BINARY.
//
// Concurrency: the pool holds a single connection, so writes serialize.
// Publishing is a compare-and-swap on the data set's latest live version:
// of two concurrent publishes from the same live version, one fails with
// ErrPublishConflict.
//
// SQLite pragmas applied on Open:
//   - journal_mode=WAL: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability and performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
