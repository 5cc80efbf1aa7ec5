// Package cid defines the content identifier type the gateway resolves,
// fetches, and caches by. A CID is an opaque byte string; equality and
// hashing are byte-identity, so it is safe to use as a map key via its
// string form.
package cid

import (
	"encoding/hex"
	"errors"
)

// ErrEmpty is returned when a request path segment decodes to zero bytes.
var ErrEmpty = errors.New("cid: empty identifier")

// CID is an opaque content identifier. The gateway never interprets its
// bytes beyond treating them as the resolver/cache lookup key.
type CID []byte

// Parse validates and normalizes a path segment into a CID. The gateway
// accepts the hex-encoded form of the identifier; callers that mint CIDs
// from an upstream multiformat scheme should decode before constructing
// one.
func Parse(s string) (CID, error) {
	if s == "" {
		return nil, ErrEmpty
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) == 0 {
		return nil, errors.New("cid: malformed identifier")
	}
	return CID(b), nil
}

// String returns the hex-encoded form used in URLs and log lines.
func (c CID) String() string {
	return hex.EncodeToString(c)
}

// Key returns the byte-identical string used as the cache's map key.
func (c CID) Key() string {
	return string(c)
}
