package port

import "context"

// IdempotencyStore remembers client-supplied keys for a limited time.
type IdempotencyStore interface {
	// Claim reports whether the key was unclaimed and is now held by the caller.
	Claim(ctx context.Context, key string) (bool, error)
	// Release frees a claimed key so the operation it guarded can be retried.
	Release(ctx context.Context, key string) error
}
