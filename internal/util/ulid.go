package util

import (
	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. Delivery chains use it as their
// correlation id; ulid.Make is safe for concurrent use and monotonic
// within a millisecond.
func New() string {
	return ulid.Make().String()
}
