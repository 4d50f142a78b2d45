// Package store provides the non-volatile key/value storage used to survive
// restarts. The file implementation persists to disk; the fake allows testing
// persistence failures.
package store

import "errors"

// ErrShortWrite is returned when fewer bytes were committed than requested.
var ErrShortWrite = errors.New("store: short write")

// Store is a small key/value store of byte values and byte blobs.
type Store interface {
	// GetByte returns the byte stored at key, or def if absent.
	GetByte(key string, def byte) byte

	// PutByte stores a single byte. A nil error means the value is committed.
	PutByte(key string, v byte) error

	// GetBytes copies the blob at key into buf and returns the number of bytes
	// copied. An absent key reads 0 bytes.
	GetBytes(key string, buf []byte) int

	// PutBytes stores a blob and returns the number of bytes committed.
	PutBytes(key string, buf []byte) (int, error)

	// Close flushes and releases the store.
	Close() error
}
