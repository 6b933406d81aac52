package storage

import "fmt"

// DefaultStoreKind is the backend used when callers leave the kind empty.
func DefaultStoreKind() string {
	return "memory"
}

// NewStore builds a Store for the given backend kind. dsn is the SQLite file
// path or the Postgres connection string, depending on the kind.
func NewStore(kind, dsn string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dsn), nil
	case "postgres":
		return NewPostgresStore(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
