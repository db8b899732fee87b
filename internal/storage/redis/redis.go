package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/timeledger/internal/config"
	"github.com/goodtune/timeledger/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store implements storage.RemoteStore using Redis. The whole family
// lives in one string key.
type Store struct {
	client  *redis.Client
	family  string
	writer  string
	blobKey string
	metaKey string
}

// Meta describes the stored blob.
type Meta struct {
	Revision  int64
	UpdatedAt time.Time
	Writer    string
}

// Open creates a new Redis-backed remote store for family. writer
// identifies this device in the blob metadata.
func Open(cfg config.RedisConfig, family, writer string) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis: %v", storage.ErrRemoteUnavailable, err)
	}

	return &Store{
		client:  client,
		family:  family,
		writer:  writer,
		blobKey: fmt.Sprintf("timeledger:family:%s", family),
		metaKey: fmt.Sprintf("timeledger:family:%s:meta", family),
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// GetAllData fetches and decodes the family blob. It returns nil, nil
// when the family has never been written.
func (s *Store) GetAllData(ctx context.Context) (*storage.Family, error) {
	data, err := s.client.Get(ctx, s.blobKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get family: %v", storage.ErrRemoteUnavailable, err)
	}

	var family storage.Family
	if err := json.Unmarshal(data, &family); err != nil {
		return nil, fmt.Errorf("decode family blob: %w", err)
	}
	return &family, nil
}

// SetAllData replaces the family blob.
func (s *Store) SetAllData(ctx context.Context, family *storage.Family) error {
	data, err := json.Marshal(family)
	if err != nil {
		return fmt.Errorf("encode family blob: %w", err)
	}

	script := redis.NewScript(setFamilyScript)
	keys := []string{s.blobKey, s.metaKey}
	args := []interface{}{
		data,
		time.Now().UTC().Format(time.RFC3339Nano),
		s.writer,
	}

	if err := script.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("%w: set family: %v", storage.ErrRemoteUnavailable, err)
	}
	return nil
}

// Meta returns the blob metadata. A family that was never written has
// revision zero.
func (s *Store) Meta(ctx context.Context) (*Meta, error) {
	data, err := s.client.HGetAll(ctx, s.metaKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: get family meta: %v", storage.ErrRemoteUnavailable, err)
	}
	return parseMeta(data)
}
