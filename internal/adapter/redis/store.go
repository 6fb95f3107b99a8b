// Package redis persists incident state in Redis as a single JSON document.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/couchcryptid/disaster-incident-service/internal/config"
	"github.com/couchcryptid/disaster-incident-service/internal/domain"
)

// client is the subset of the go-redis API the store uses.
type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// Store implements pipeline.StateStore.
type Store struct {
	client client
	key    string
	logger *slog.Logger
}

// NewStore connects to Redis and verifies the connection with a ping.
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Info("connected to redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)

	return newStore(rdb, cfg.RedisKeyPrefix, logger), nil
}

func newStore(c client, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = "incidents"
	}
	return &Store{client: c, key: prefix + ":state", logger: logger}
}

// Load reads the saved state. A missing key yields an empty state.
func (s *Store) Load(ctx context.Context) (domain.State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.State{}, nil
		}
		return domain.State{}, fmt.Errorf("load incident state: %w", err)
	}

	var state domain.State
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.State{}, fmt.Errorf("decode incident state: %w", err)
	}
	return state, nil
}

// Save writes state without expiry, replacing the previous document.
func (s *Store) Save(ctx context.Context, state domain.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode incident state: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save incident state: %w", err)
	}
	s.logger.Debug("incident state saved", "key", s.key, "incidents", len(state.Incidents), "bytes", len(data))
	return nil
}

// CheckReadiness pings Redis.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
