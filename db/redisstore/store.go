// Package redisstore keeps the latest stack metadata snapshot per stack in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cdkop/internal/metadata"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key.
	Prefix string
	// Expiration bounds how long a snapshot is kept. Zero keeps it forever.
	Expiration time.Duration
}

// DefaultConfig returns a local Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:       "localhost:6379",
		Prefix:     "cdkop:snapshot:",
		Expiration: 24 * time.Hour,
	}
}

// Store implements metadata.Store on Redis.
type Store struct {
	client *redis.Client
	cfg    Config
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, cfg Config) *Store {
	return &Store{client: client, cfg: cfg}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(stack, region string) string {
	return s.cfg.Prefix + region + ":" + stack
}

// Latest implements metadata.Store.
func (s *Store) Latest(ctx context.Context, stack, region string) (*metadata.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(stack, region)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, metadata.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap metadata.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save implements metadata.Store. Only the newest snapshot per stack is kept.
func (s *Store) Save(ctx context.Context, snap *metadata.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snap.Stack, snap.Region), data, s.cfg.Expiration).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
