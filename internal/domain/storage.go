package domain

import "time"

// Storage is the key-value contract conversation state is persisted
// through. Consistency across concurrent requests is the backend's
// responsibility; the engine only relies on Has/Get/Pull/Put semantics.
type Storage interface {
	Has(key string) bool
	Get(key string) ([]byte, bool)

	// Pull returns the value and deletes it in one call.
	Pull(key string) ([]byte, bool)

	// Put stores a value with a time-to-live. A zero ttl means the
	// backend default.
	Put(key string, value []byte, ttl time.Duration) error
}
