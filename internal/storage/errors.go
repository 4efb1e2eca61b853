package storage

import "errors"

var (
	// ErrConnect indicates a backend could not be reached during construction
	ErrConnect = errors.New("storage backend unreachable")

	// ErrNotFound indicates a key is absent or has expired
	ErrNotFound = errors.New("key not found")

	// ErrDecode indicates a stored value is not valid JSON
	ErrDecode = errors.New("stored value undecodable")
)
