// Package store is the durable key-value layer behind conversation history
// and chat configuration. Values are opaque bytes; backends differ only in
// where the bytes live.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Load when a key has never been saved or was cleared.
var ErrNotFound = errors.New("store: key not found")

// Store persists values under fixed keys. Implementations are not required to
// be safe for concurrent use; callers serialize access.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
	Clear(key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendPebble = "pebble"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the named backend rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return NewFileStore(dir)
	case BackendPebble:
		return NewPebbleStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(dir)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid store key %q", key)
	}
	return nil
}
