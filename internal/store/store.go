// Package store defines the persistence errors shared by every store implementation.
package store

import "errors"

var (
	// ErrDuplicate reports a unique-constraint violation on an import fingerprint
	// or a unique name. For transaction inserts it is proof of duplication, not a failure.
	ErrDuplicate = errors.New("duplicate")
	// ErrConstraint reports any other integrity violation (unknown account, bad parent, ...).
	ErrConstraint = errors.New("constraint violation")
	// ErrUnavailable reports that the store could not be reached in time.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound reports a lookup miss.
	ErrNotFound = errors.New("not found")
)

// IsInfrastructure reports whether err means the store itself failed, as opposed
// to rejecting a single row.
func IsInfrastructure(err error) bool {
	return err != nil && !errors.Is(err, ErrDuplicate) && !errors.Is(err, ErrConstraint) && !errors.Is(err, ErrNotFound)
}
