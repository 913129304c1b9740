package store

import "errors"

// errNotFound wraps lookups that found no row, distinct from
// graph.ErrNotFound (directions) since it covers cycle/report rows too.
var errNotFound = errors.New("not found")
