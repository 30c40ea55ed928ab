package catalog

import "errors"

var (
	// ErrLoadCatalog is returned when the catalog document cannot be read or parsed.
	ErrLoadCatalog = errors.New("load catalog")
	// ErrInvalidCatalog is returned when an item fails validation.
	ErrInvalidCatalog = errors.New("invalid catalog")
	// ErrItemNotFound is returned by Get for unknown ids.
	ErrItemNotFound = errors.New("item not found")
)
