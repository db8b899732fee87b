package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goodtune/timeledger/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketLocal = "local"
	bucketMeta  = "meta"

	metaUpdatedPrefix = "updated:"
)

var (
	_ storage.LocalStore = (*Store)(nil)
	_ storage.Inspector  = (*Store)(nil)
)

// Store implements storage.LocalStore using bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketLocal, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := getBucketValue(ctx, s.db, bucketLocal, key)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// Set stores value under key and records when it was written.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := putValue(tx, bucketLocal, key, []byte(value)); err != nil {
			return err
		}
		stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
		return putValue(tx, bucketMeta, metaUpdatedPrefix+key, stamp)
	})
}

// MultiRemove deletes keys in one transaction. Missing keys are ignored.
func (s *Store) MultiRemove(ctx context.Context, keys ...string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		local := tx.Bucket([]byte(bucketLocal))
		meta := tx.Bucket([]byte(bucketMeta))
		if local == nil || meta == nil {
			return fmt.Errorf("bucket missing: %s", bucketLocal)
		}
		for _, key := range keys {
			if err := local.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			if err := meta.Delete([]byte(metaUpdatedPrefix + key)); err != nil {
				return fmt.Errorf("delete %s metadata: %w", key, err)
			}
		}
		return nil
	})
}

// UpdatedAt returns when key was last written.
func (s *Store) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	value, err := getBucketValue(ctx, s.db, bucketMeta, metaUpdatedPrefix+key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, string(value))
}

// Keys lists the stored keys in byte order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	return keys, s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketLocal))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			keys = append(keys, string(k))
			return nil
		})
	})
}

func getBucketValue(ctx context.Context, db *bbolt.DB, bucket string, key string) ([]byte, error) {
	var out []byte
	err := db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(key))
		if value == nil {
			return storage.ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction.
		out = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func putValue(tx *bbolt.Tx, bucket, key string, value []byte) error {
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("bucket missing: %s", bucket)
	}
	return b.Put([]byte(key), value)
}
