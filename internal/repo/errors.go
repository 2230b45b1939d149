package repo

import "errors"

// ErrNotFound is returned when a lookup by id (or tenant-scoped id) misses.
var ErrNotFound = errors.New("repo: not found")
