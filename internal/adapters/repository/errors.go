package repository

import "errors"

// Sentinel kinds for profile persistence errors.
var (
	ErrClosed      = errors.New("backend closed")
	ErrEmptyKey    = errors.New("empty storage key")
	ErrOpenBackend = errors.New("open backend")
)
