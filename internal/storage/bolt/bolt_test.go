package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goodtune/timeledger/internal/storage"
)

func TestStoreGetSet(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Set(ctx, storage.KeyUserName, "Emma"); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, storage.KeyUserName)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "Emma" {
		t.Errorf("expected Emma, got %q", got)
	}

	if _, err := store.UpdatedAt(ctx, storage.KeyUserName); err != nil {
		t.Errorf("expected write timestamp, got %v", err)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	_, err := store.Get(context.Background(), storage.KeyCurrentDay)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreMultiRemove(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for _, key := range storage.SettingsKeys {
		if err := store.Set(ctx, key, "{}"); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := store.Set(ctx, storage.KeyUserName, "Emma"); err != nil {
		t.Fatalf("set user name: %v", err)
	}

	// includes a key that was never written
	keys := append([]string{storage.KeyAllAppData}, storage.SettingsKeys...)
	if err := store.MultiRemove(ctx, keys...); err != nil {
		t.Fatalf("multi remove: %v", err)
	}

	for _, key := range storage.SettingsKeys {
		if _, err := store.Get(ctx, key); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected %s removed, got %v", key, err)
		}
	}

	remaining, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(remaining) != 1 || remaining[0] != storage.KeyUserName {
		t.Errorf("expected only userName to remain, got %v", remaining)
	}
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "timeledger.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Set(context.Background(), storage.KeyCurrentDay, `{"date":"2024-03-04"}`); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(context.Background(), storage.KeyCurrentDay)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got != `{"date":"2024-03-04"}` {
		t.Errorf("unexpected value after reopen: %s", got)
	}
}

func TestStoreCancelledContext(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Set(ctx, storage.KeyUserName, "Emma"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "timeledger.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestDescribe(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Set(ctx, storage.KeyUserName, "Emma"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, storage.KeyCurrentDay, `{"date":"2024-03-04"}`); err != nil {
		t.Fatalf("set: %v", err)
	}

	entries, err := storage.Describe(ctx, store)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].Key != storage.KeyCurrentDay || entries[0].Bytes != 21 {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Key != storage.KeyUserName || entries[1].Bytes != 4 {
		t.Errorf("unexpected second entry %+v", entries[1])
	}
	for _, e := range entries {
		if e.UpdatedAt.IsZero() {
			t.Errorf("expected write time for %s", e.Key)
		}
	}
}
