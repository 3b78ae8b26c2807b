package session

import "context"

// Store persists the key/value fields of a browser session. Implementations
// must treat a missing session as empty rather than as an error.
type Store interface {
	// Get returns every field stored for the session.
	Get(ctx context.Context, id string) (map[string]string, error)
	// Set merges fields into the session, leaving other keys untouched.
	Set(ctx context.Context, id string, fields map[string]string) error
	// Replace removes drop and merges fields in one atomic step. Keys in both
	// end up with the value from fields.
	Replace(ctx context.Context, id string, fields map[string]string, drop []string) error
	// Delete removes the given keys from the session.
	Delete(ctx context.Context, id string, keys ...string) error
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
