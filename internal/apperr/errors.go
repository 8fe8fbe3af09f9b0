// Package apperr defines sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrFormat    = errors.New("unsupported page format")
	ErrIO        = errors.New("i/o failure")
	ErrCollision = errors.New("output name collision")
	ErrConflict  = errors.New("conflict")
)
