package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/climateseal/carbonmatch/internal/db"
)

func (s *Store) getCmd(key string) rueidis.Completed {
	return s.client.B().Get().Key(key).Build()
}

// setCmd builds SET, with EX when ttl is positive. EX has one-second resolution.
func (s *Store) setCmd(key string, value []byte, ttl time.Duration) rueidis.Completed {
	set := s.client.B().Set().Key(key).Value(rueidis.BinaryString(value))
	if ttl > 0 {
		return set.Ex(ttl).Build()
	}
	return set.Build()
}

// Get returns the value at key, or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.getCmd(key)).AsBytes()
	if rueidis.IsRedisNil(err) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// GetMulti pipelines one GET per key so cluster deployments route each key to its own slot.
// Missing keys yield nil entries; the first transport error fails the whole lookup.
func (s *Store) GetMulti(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make(rueidis.Commands, len(keys))
	for i, k := range keys {
		cmds[i] = s.getCmd(k)
	}

	out := make([][]byte, len(keys))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		data, err := res.AsBytes()
		if rueidis.IsRedisNil(err) {
			continue
		}
		if err != nil {
			return nil, &db.Error{Op: db.OpGet, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
		out[i] = data
	}
	return out, nil
}

// SetWithTTL stores value at key, expiring after ttl (no expiry when ttl <= 0).
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Do(ctx, s.setCmd(key, value, ttl)).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// SetMultiWithTTL pipelines one SET per entry. Entries are written independently;
// the error reports how many failed and the first cause.
func (s *Store) SetMultiWithTTL(ctx context.Context, entries []db.KV, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	cmds := make(rueidis.Commands, len(entries))
	for i, e := range entries {
		cmds[i] = s.setCmd(e.Key, e.Value, ttl)
	}

	var first error
	failed := 0
	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if failed > 0 {
		return &db.Error{Op: db.OpSet, Err: fmt.Errorf("%d of %d writes failed: %w", failed, len(entries), first)}
	}
	return nil
}
