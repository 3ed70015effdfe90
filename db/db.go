package db

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("key not found")

const (
	BackendLevelDB = "leveldb"
	BackendBadger  = "badger"
)

// KVStore is what the repository needs from a key-value backend
type KVStore interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
	Close() error
}

// Open opens the backend selected in configuration
func Open(backend, path string) (KVStore, error) {
	switch backend {
	case BackendLevelDB, "":
		return NewLevelDB(path)
	case BackendBadger:
		return NewBadger(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
