package cache

import "context"

// TokenCache caches customer device tokens so the processor does not hit
// Postgres for every delivery attempt. A cache is always optional; callers
// must fall back to the repository on a miss or error.
type TokenCache interface {
	GetToken(ctx context.Context, customerID string) (token string, ok bool, err error)
	StoreToken(ctx context.Context, customerID, token string) error
}
