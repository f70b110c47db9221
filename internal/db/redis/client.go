// Package redis is the Valkey/Redis key-value store backing the embedding cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/rueidis"

	"github.com/climateseal/carbonmatch/internal/db"
)

var _ db.KVStore = (*Store)(nil)

// Config holds connection parameters for the cache.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// DialTimeout bounds connection setup; zero uses the rueidis default.
	DialTimeout time.Duration
	// WriteTimeout bounds a stalled connection before commands fail; zero uses the rueidis default.
	WriteTimeout time.Duration
}

// Store implements db.KVStore over a rueidis client.
type Store struct {
	client rueidis.Client
}

// NewStore connects to the cache. rueidis dials eagerly, so an unreachable
// server is reported here rather than on first use.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("cache addrs are required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      cfg.Addrs,
		Username:         cfg.Username,
		Password:         cfg.Password,
		SelectDB:         cfg.DB,
		ClientName:       "carbonmatch",
		Dialer:           net.Dialer{Timeout: cfg.DialTimeout},
		ConnWriteTimeout: cfg.WriteTimeout,
		// vectors are read once per text; server-assisted client caching would only hold memory
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to cache %v: %w", cfg.Addrs, err)
	}
	return &Store{client: client}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: "PING", Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings immediately and then every 200ms until the store answers or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("cache not ready after %s: %w (last error: %w)", timeout, ctx.Err(), err)
		case <-ticker.C:
		}
	}
}
