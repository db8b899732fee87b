package storage

import (
	"context"
	"errors"
	"testing"
)

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m mapStore) Set(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func (m mapStore) MultiRemove(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (m mapStore) Close() error { return nil }

func TestDescribeNeedsInspector(t *testing.T) {
	_, err := Describe(context.Background(), mapStore{KeyUserName: "Emma"})
	if !errors.Is(err, ErrNotInspectable) {
		t.Fatalf("expected ErrNotInspectable, got %v", err)
	}
}
