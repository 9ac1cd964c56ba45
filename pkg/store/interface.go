package store

import (
	"errors"
	"fmt"

	"github.com/itohio/surflamp/pkg/config"
)

// ErrNotFound is returned by Load when the key has never been saved or was deleted.
var ErrNotFound = errors.New("store: key not found")

// Store is a durable key-value store that survives power loss.
// Implementations are not required to be safe for concurrent writers; the
// network lane is the only writer.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Ensure implementations satisfy Store.
var (
	_ Store = (*File)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Memory)(nil)
)

// Open opens the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "file", "":
		return NewFile(cfg.Path)
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
