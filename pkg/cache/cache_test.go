package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// insert is a terse test helper around Cache.Insert that fails the test on
// an unexpected error and returns the evicted count for callers that care.
func insert(t *testing.T, c *Cache, key string, bytes []byte, now time.Time) int {
	t.Helper()
	evicted, err := c.Insert(key, bytes, now)
	require.NoError(t, err)
	return evicted
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	c := New(1024, time.Minute)
	now := time.Now()

	insert(t, c, "a", []byte("hello"), now)

	entry, ok := c.Get("a", now)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), entry.Bytes)

	stats := c.Stats()
	assert.Equal(t, int64(5), stats.SizeBytes)
	assert.Equal(t, 1, stats.Entries)
}

func TestInsertRejectsOversizedArtifact(t *testing.T) {
	c := New(4, time.Minute)
	_, err := c.Insert("a", []byte("hello"), time.Now())
	assert.ErrorIs(t, err, ErrOversized)
	assert.Equal(t, int64(0), c.Stats().SizeBytes)
}

func TestGetMissOnAbsentKey(t *testing.T) {
	c := New(1024, time.Minute)
	_, ok := c.Get("missing", time.Now())
	assert.False(t, ok)
}

func TestGetMissOnExpiredEntry(t *testing.T) {
	c := New(1024, time.Millisecond)
	now := time.Now()
	insert(t, c, "a", []byte("x"), now)

	later := now.Add(time.Hour)
	_, ok := c.Get("a", later)
	assert.False(t, ok, "an expired entry must report as a miss")

	// TTLCleanUp has not run yet, so size accounting is untouched by Get.
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestInsertEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(10, time.Minute)
	now := time.Now()

	insert(t, c, "a", []byte("12345"), now) // 5 bytes
	insert(t, c, "b", []byte("12345"), now) // 5 bytes, at capacity

	// touch "a" so "b" becomes the least-recently-used entry
	_, ok := c.Get("a", now)
	require.True(t, ok)

	evicted := insert(t, c, "c", []byte("12345"), now) // forces an eviction
	assert.Equal(t, 1, evicted)

	_, aOK := c.Get("a", now)
	_, bOK := c.Get("b", now)
	_, cOK := c.Get("c", now)

	assert.True(t, aOK, "recently used entry must survive eviction")
	assert.False(t, bOK, "least recently used entry must be evicted")
	assert.True(t, cOK)
}

func TestInsertNeverEvictsTheEntryBeingInserted(t *testing.T) {
	c := New(5, time.Minute)
	now := time.Now()

	insert(t, c, "a", []byte("12345"), now)
	evicted := insert(t, c, "a", []byte("67890"), now)
	assert.Equal(t, 0, evicted, "replacing the only entry must not evict itself")

	entry, ok := c.Get("a", now)
	require.True(t, ok)
	assert.Equal(t, []byte("67890"), entry.Bytes)
}

func TestTTLCleanUpRemovesExpiredEntriesOnly(t *testing.T) {
	c := New(1024, time.Millisecond)
	now := time.Now()
	insert(t, c, "old", []byte("x"), now)

	c.ttlBuf = time.Hour
	insert(t, c, "fresh", []byte("y"), now)

	later := now.Add(time.Minute)
	evicted := c.TTLCleanUp(later)
	assert.Equal(t, 1, evicted)

	_, oldOK := c.Get("old", later)
	_, freshOK := c.Get("fresh", later)
	assert.False(t, oldOK)
	assert.True(t, freshOK)
}

func TestPurgeIsIdempotent(t *testing.T) {
	c := New(1024, time.Minute)
	now := time.Now()
	insert(t, c, "a", []byte("x"), now)

	assert.True(t, c.Purge("a"))
	assert.False(t, c.Purge("a"), "purging an already-purged key is a no-op")

	_, ok := c.Get("a", now)
	assert.False(t, ok)
}

func TestInFlightJoinAndResolve(t *testing.T) {
	c := New(1024, time.Minute)

	first := make(Waiter, 1)
	c.BeginInFlight("a", first)

	_, ok := c.GetInFlight("a")
	require.True(t, ok)
	assert.Equal(t, 1, c.Stats().InFlight)

	second := make(Waiter, 1)
	c.JoinInFlight("a", second)

	c.ResolveInFlight("a", FetchResult{Bytes: []byte("done")})

	_, ok = c.GetInFlight("a")
	assert.False(t, ok, "resolving clears the in-flight record")

	firstResult := <-first
	secondResult := <-second
	assert.Equal(t, []byte("done"), firstResult.Bytes)
	assert.Equal(t, []byte("done"), secondResult.Bytes)
}
