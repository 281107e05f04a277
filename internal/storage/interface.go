package storage

import "context"

// BlobStore stores immutable payloads under generated UUID keys. Callers
// never choose keys; Save returns the key the payload lives under.
type BlobStore interface {
	// Save persists the payload and returns its storage key
	Save(ctx context.Context, data []byte, contentType string) (string, error)

	// Load retrieves a payload by key
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes a payload by key
	Delete(ctx context.Context, key string) error

	// Exists checks if a payload exists
	Exists(ctx context.Context, key string) (bool, error)
}
