package storage

import "fmt"

// Config selects and configures a blob store backend.
type Config struct {
	Backend string
	Root    string
	S3      S3Config
}

// NewBlobStore creates a BlobStore instance based on the configuration.
// Parameters:
//   - cfg: storage configuration including backend selection.
// Returns:
//   - BlobStore: initialized blob store implementation.
//   - error: non-nil if the store cannot be created.
func NewBlobStore(cfg *Config) (BlobStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Root)
	case "s3":
		return NewS3Store(&cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}
