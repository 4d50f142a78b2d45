package store

import "errors"

// FakeStore is an in-memory Store that records writes for test assertions.
type FakeStore struct {
	// Entries holds the committed values.
	Entries map[string][]byte

	// Writes counts committed puts per key.
	Writes map[string]int

	// FailKeys makes puts to these keys fail without committing.
	FailKeys map[string]bool

	// ShortWrite makes PutBytes commit nothing and report one byte less
	// than requested, with no error.
	ShortWrite bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Entries:  make(map[string][]byte),
		Writes:   make(map[string]int),
		FailKeys: make(map[string]bool),
	}
}

// GetByte returns the byte at key, or def.
func (f *FakeStore) GetByte(key string, def byte) byte {
	v, ok := f.Entries[key]
	if !ok || len(v) != 1 {
		return def
	}
	return v[0]
}

// PutByte stores v unless key is in FailKeys.
func (f *FakeStore) PutByte(key string, v byte) error {
	if f.FailKeys[key] {
		return errors.New("simulated store failure")
	}
	f.Entries[key] = []byte{v}
	f.Writes[key]++
	return nil
}

// GetBytes copies the blob at key into buf.
func (f *FakeStore) GetBytes(key string, buf []byte) int {
	return copy(buf, f.Entries[key])
}

// PutBytes stores a copy of buf unless key is in FailKeys or ShortWrite is set.
func (f *FakeStore) PutBytes(key string, buf []byte) (int, error) {
	if f.FailKeys[key] {
		return 0, errors.New("simulated store failure")
	}
	if f.ShortWrite && len(buf) > 0 {
		return len(buf) - 1, nil
	}
	f.Entries[key] = append([]byte(nil), buf...)
	f.Writes[key]++
	return len(buf), nil
}

// Close marks the store as closed.
func (f *FakeStore) Close() error {
	f.Closed = true
	return nil
}

// TotalWrites returns the number of committed puts across all keys.
func (f *FakeStore) TotalWrites() int {
	n := 0
	for _, c := range f.Writes {
		n += c
	}
	return n
}
