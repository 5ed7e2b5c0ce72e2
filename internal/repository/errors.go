// Package repository holds the error contract shared by the store implementations.
package repository

import "errors"

var (
	// ErrNotFound is returned when a key or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("concurrent update conflict")
)
