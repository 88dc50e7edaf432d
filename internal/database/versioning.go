package database

import (
	"errors"

	"github.com/lib/pq"
)

// maxVersionRetries bounds the recompute-and-retry loop used by the
// versioned inserts. Under the per-user serialization the first attempt
// always wins; the retries only matter when writers race past that boundary.
const maxVersionRetries = 3

// ErrVersionConflict is returned when a versioned insert still collides
// after exhausting retries.
var ErrVersionConflict = errors.New("version conflict")

// ErrNotFound is returned when no row matches a lookup.
var ErrNotFound = errors.New("not found")

const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique-key violation,
// i.e. another writer claimed the computed version first.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
