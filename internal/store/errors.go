package store

import "errors"

var (
	// ErrVersionNotFound indicates no matching dataset version exists.
	ErrVersionNotFound = errors.New("dataset version not found")

	// ErrDuplicateVersion indicates the (dataset, version, user) key is taken.
	ErrDuplicateVersion = errors.New("dataset version already registered")
)
