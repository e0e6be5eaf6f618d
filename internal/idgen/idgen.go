package idgen

import "github.com/google/uuid"

// New returns a new globally unique identifier as string. It is implemented
// as a thin wrapper so tests can stub it.

var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// Short returns the first 8 characters of a fresh identifier - enough to
// disambiguate timestamp-derived keys minted within the same millisecond.
func Short() string {
	id := New()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
