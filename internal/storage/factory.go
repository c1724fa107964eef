package storage

import (
	"fmt"
	"strings"
)

// NewStore opens the run store named by kind: "memory" (also the empty
// string) or "sqlite", which writes to sqlitePath and needs the sqlite build
// tag. Kind names are case-insensitive.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend %q (want memory or sqlite)", kind)
	}
}

// CloseIfSupported closes stores holding a connection; the memory store has
// nothing to release.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
