package store

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDanglingLink is returned by Commit when an entity references a parent
// that is nil.
var ErrDanglingLink = errors.New("dangling link")

func errDangling(what string) error {
	return eris.Wrapf(ErrDanglingLink, "store: %s has no parent", what)
}

// errUnresolved reports a parent whose id was never assigned.
func errUnresolved(what, key string) error {
	return eris.Wrapf(ErrDanglingLink, "store: %s references uncommitted parent %s", what, key)
}
