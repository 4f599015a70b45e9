// Package kv is the persistence layer for tutor chat sessions.
//
// Design principles:
// - Reads never fail: an absent key or a backend error yields ("", false)
// - Writes surface ErrQuotaExceeded so the caller can free space and retry
// - Removes are idempotent
//
// Callers serialize values to JSON strings before writing; the store itself
// is agnostic to the payload shape.
package kv

import "github.com/pkg/errors"

// ErrQuotaExceeded is returned by Write when the backend has no room left.
// The session store reacts with a cleanup pass and a single retry.
var ErrQuotaExceeded = errors.New("kv: storage quota exceeded")

// Store abstracts a string key/value store.
type Store interface {
	// Read returns the value for key, or ("", false) if absent or unreadable.
	Read(key string) (string, bool)

	// Write stores value under key. Returns ErrQuotaExceeded when out of room.
	Write(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string)

	// Keys returns all keys with the given prefix, in unspecified order.
	Keys(prefix string) []string
}
