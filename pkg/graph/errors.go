package graph

import "errors"

// ErrInvalidDirection is wrapped by Direction.Validate failures.
var ErrInvalidDirection = errors.New("invalid direction")

// ErrNotFound indicates a requested direction does not exist in the
// workspace it was looked up in.
var ErrNotFound = errors.New("direction not found")
