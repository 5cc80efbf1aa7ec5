package cache

import "time"

// FetchResult is delivered to a waiter sink once a single-flight fetch
// resolves, either with a shared handle to the fetched bytes or an error.
// ExpiresAt is the absolute expiry of the entry the bytes came from (zero
// on a freshly completed upstream fetch that has not yet been installed in
// the cache's index); callers deriving a Cache-Control header must use it
// rather than the cache's configured ttl_buf, since a hit served late in
// an entry's life has less remaining TTL than a cold insert.
type FetchResult struct {
	Bytes     []byte
	ExpiresAt time.Time
	Err       error
}

// Waiter is a one-shot sink a caller blocks on to receive a FetchResult. A
// waiter whose receiver has gone away (request canceled) is simply skipped
// when the fetch completes — it never blocks the fetch for the others.
type Waiter chan FetchResult

// InFlight tracks an outstanding fetch for a single CID and the waiters
// that joined it after the first caller missed the cache.
type InFlight struct {
	CID     string
	Waiters []Waiter
}

// notify delivers result to every waiter without blocking on a waiter that
// is no longer being read (a canceled request's receiver stopped
// listening); each waiter channel is created with enough buffer for one
// send so this never blocks.
func (f *InFlight) notify(result FetchResult) {
	for _, w := range f.Waiters {
		select {
		case w <- result:
		default:
		}
	}
}
