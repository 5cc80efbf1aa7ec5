package cache

import "errors"

// ErrOversized is returned by Insert when the artifact is larger than the
// cache's configured max size: the entry can never fit, so it is rejected
// without evicting anything. The caller still serves the bytes to the
// originating request from memory; they are simply never retained.
var ErrOversized = errors.New("cache: artifact exceeds max_size_bytes")
