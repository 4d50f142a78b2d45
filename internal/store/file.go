package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// fileVersion is the current version of the on-disk format.
const fileVersion = 1

// fileImage is the on-disk CBOR document.
type fileImage struct {
	Version int               `cbor:"1,keyasint"`
	Entries map[string][]byte `cbor:"2,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsEmpty,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: cbor encoder mode: %v", err))
	}
}

// FileStore keeps every entry in memory and rewrites a single CBOR file on
// each put. Writes go to a temporary file that is renamed over the old one, so
// a crash leaves either the previous or the new image.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string][]byte
}

// OpenFile loads the store at path. A missing file is an empty store.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, entries: make(map[string][]byte)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var img fileImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}
	if img.Version != fileVersion {
		return nil, fmt.Errorf("state file version %d, want %d", img.Version, fileVersion)
	}
	for k, v := range img.Entries {
		s.entries[k] = v
	}
	return s, nil
}

// GetByte returns the first byte stored at key, or def.
func (s *FileStore) GetByte(key string, def byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[key]
	if !ok || len(v) != 1 {
		return def
	}
	return v[0]
}

// PutByte stores v at key and flushes to disk.
func (s *FileStore) PutByte(key string, v byte) error {
	_, err := s.put(key, []byte{v})
	return err
}

// GetBytes copies the blob at key into buf.
func (s *FileStore) GetBytes(key string, buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[key]
	if !ok {
		return 0
	}
	return copy(buf, v)
}

// PutBytes stores a copy of buf at key and flushes to disk.
func (s *FileStore) PutBytes(key string, buf []byte) (int, error) {
	return s.put(key, buf)
}

// Close is a no-op; every put is already flushed.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) put(key string, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.entries[key]
	s.entries[key] = append([]byte(nil), buf...)

	if err := s.flush(); err != nil {
		if had {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return 0, err
	}
	return len(buf), nil
}

// flush must be called with mu held.
func (s *FileStore) flush() error {
	data, err := encMode.Marshal(fileImage{Version: fileVersion, Entries: s.entries})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
