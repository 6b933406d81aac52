package storage

import "testing"

func TestNewStoreKinds(t *testing.T) {
	cases := []struct {
		kind string
		want any
	}{
		{kind: "", want: (*MemoryStore)(nil)},
		{kind: "memory", want: (*MemoryStore)(nil)},
		{kind: "sqlite", want: (*SQLiteStore)(nil)},
		{kind: "postgres", want: (*PostgresStore)(nil)},
	}
	for _, tc := range cases {
		store, err := NewStore(tc.kind, "unused")
		if err != nil {
			t.Fatalf("new store %q: %v", tc.kind, err)
		}
		if store == nil {
			t.Fatalf("expected non-nil store for kind %q", tc.kind)
		}
		switch tc.want.(type) {
		case *MemoryStore:
			if _, ok := store.(*MemoryStore); !ok {
				t.Fatalf("kind %q built %T", tc.kind, store)
			}
		case *SQLiteStore:
			if _, ok := store.(*SQLiteStore); !ok {
				t.Fatalf("kind %q built %T", tc.kind, store)
			}
		case *PostgresStore:
			if _, ok := store.(*PostgresStore); !ok {
				t.Fatalf("kind %q built %T", tc.kind, store)
			}
		}
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestDefaultStoreKind(t *testing.T) {
	if DefaultStoreKind() != "memory" {
		t.Fatalf("unexpected default store kind: %s", DefaultStoreKind())
	}
}

func TestCloseIfSupported(t *testing.T) {
	if err := CloseIfSupported(NewMemoryStore()); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
	if err := CloseIfSupported(NewSQLiteStore("unopened.db")); err != nil {
		t.Fatalf("close unopened sqlite store: %v", err)
	}
}
