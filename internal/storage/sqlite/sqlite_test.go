package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goodtune/timeledger/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "timeledger.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreGetSet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, storage.KeyCurrentDay); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, v := range []string{"Emma", "Noah"} {
		if err := store.Set(ctx, storage.KeyUserName, v); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	got, err := store.Get(ctx, storage.KeyUserName)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "Noah" {
		t.Errorf("expected overwrite to Noah, got %q", got)
	}
	if _, err := store.UpdatedAt(ctx, storage.KeyUserName); err != nil {
		t.Errorf("expected write timestamp, got %v", err)
	}
}

func TestStoreMultiRemove(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, key := range storage.SettingsKeys {
		if err := store.Set(ctx, key, "{}"); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := store.Set(ctx, storage.KeyUserName, "Emma"); err != nil {
		t.Fatalf("set user name: %v", err)
	}

	keys := append([]string{storage.KeyAllAppData}, storage.SettingsKeys...)
	if err := store.MultiRemove(ctx, keys...); err != nil {
		t.Fatalf("multi remove: %v", err)
	}

	remaining, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(remaining) != 1 || remaining[0] != storage.KeyUserName {
		t.Errorf("expected only userName left, got %v", remaining)
	}
	if _, err := store.UpdatedAt(ctx, storage.KeyLimits); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected metadata removed, got %v", err)
	}
}

func TestOpenTwiceKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeledger.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Set(ctx, storage.KeyUserName, "Emma"); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.Close() }()

	got, err := store.Get(ctx, storage.KeyUserName)
	if err != nil || got != "Emma" {
		t.Errorf("expected Emma after reopen, got %q (%v)", got, err)
	}
}

func TestDescribe(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, storage.KeyLimits, `{"tablet":60}`); err != nil {
		t.Fatalf("set: %v", err)
	}

	entries, err := storage.Describe(ctx, store)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != storage.KeyLimits || entries[0].Bytes != 13 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].UpdatedAt.IsZero() {
		t.Error("expected write time")
	}
}
