// Package repository persists behavioral profiles on a string key-value
// backend and broadcasts a change notification after every save.
package repository

import "context"

// Backend is a synchronous string key-value store. A missing key is reported
// as ok == false with a nil error.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
