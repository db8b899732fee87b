package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotInspectable is returned by Describe for stores that cannot list
// their keys.
var ErrNotInspectable = errors.New("storage: store cannot list its keys")

// Inspector is implemented by local stores that track what they hold.
type Inspector interface {
	Keys(ctx context.Context) ([]string, error)
	UpdatedAt(ctx context.Context, key string) (time.Time, error)
}

// Entry describes one stored key.
type Entry struct {
	Key       string    `json:"key"`
	Bytes     int       `json:"bytes"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Describe lists every key in store with its size and last write time.
// A key written before write times were tracked has a zero UpdatedAt.
func Describe(ctx context.Context, store LocalStore) ([]Entry, error) {
	in, ok := store.(Inspector)
	if !ok {
		return nil, ErrNotInspectable
	}
	keys, err := in.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		value, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		e := Entry{Key: key, Bytes: len(value)}
		e.UpdatedAt, err = in.UpdatedAt(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("get %s write time: %w", key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
