package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a data set, version, mapping or token
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPublishConflict is returned when another version became live
	// between mapping and publishing.
	ErrPublishConflict = errors.New("publish conflict: latest live version changed")

	// ErrMappingImmutable is returned when the mapping of a published
	// version would be rewritten.
	ErrMappingImmutable = errors.New("mapping of a published version is immutable")
)

// busyError marks lock contention as retryable for the executor.
type busyError struct{ err error }

func (e busyError) Error() string   { return e.err.Error() }
func (e busyError) Unwrap() error   { return e.err }
func (e busyError) Retryable() bool { return true }

// classify wraps SQLite lock errors so callers can retry them.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return busyError{err: err}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// notFoundError names the missing row. It matches ErrNotFound and
// reports NotFound for packages that cannot import store.
type notFoundError struct{ what, id string }

func (e notFoundError) Error() string        { return fmt.Sprintf("%s %s: %s", e.what, e.id, ErrNotFound) }
func (e notFoundError) Is(target error) bool { return target == ErrNotFound }
func (e notFoundError) NotFound() bool       { return true }

func notFound(what, id string) error {
	return notFoundError{what: what, id: id}
}
