package cache

import "context"

// Store is the persisted key-value state behind the dashboard. Every Set
// replaces the value whole; readers never see a partial write.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
