package cache

import "time"

// Entry is a single cached artifact. Bytes is shared-immutable once
// inserted: concurrent streaming readers hold their own reference to the
// slice, so eviction from the cache's index does not invalidate a read
// already in progress — Go's garbage collector keeps the backing array
// alive for as long as any reader still references it.
type Entry struct {
	CID        string
	Bytes      []byte
	SizeBytes  int64
	InsertedAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the entry is no longer live at instant now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
