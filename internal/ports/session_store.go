package ports

import "context"

// SessionStore keeps opaque browser session blobs (cookies, storage state) by key.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
