package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"

	"wasmlab-server/models"
	"wasmlab-server/wasmvm"
)

// ErrKVFull is returned when a new key would exceed the per-project cap.
// Updating an existing key never fails with it.
var ErrKVFull = errors.New("kv store is full")

// KVStore is a project's key-value store. The sandbox sees only Get and Set.
type KVStore interface {
	wasmvm.KVStore
	List(ctx context.Context) ([]models.KVEntry, error)
}

// MemoryKVStore keeps a project's entries in process memory
type MemoryKVStore struct {
	mu         sync.RWMutex
	entries    map[string]string
	maxEntries int
}

// NewMemoryKVStore creates a store holding at most maxEntries keys (0 = no cap)
func NewMemoryKVStore(maxEntries int) *MemoryKVStore {
	return &MemoryKVStore{entries: make(map[string]string), maxEntries: maxEntries}
}

func (s *MemoryKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok, nil
}

func (s *MemoryKVStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		return fmt.Errorf("%w: %d entries", ErrKVFull, s.maxEntries)
	}
	s.entries[key] = value
	return nil
}

func (s *MemoryKVStore) List(ctx context.Context) ([]models.KVEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.KVEntry, 0, len(s.entries))
	for k, v := range s.entries {
		out = append(out, models.KVEntry{Key: k, Value: v})
	}
	sortEntries(out)
	return out, nil
}

// RedisKVStore keeps a project's entries in the hash kv:<project>
type RedisKVStore struct {
	client     *redis.Client
	key        string
	maxEntries int
}

func NewRedisKVStore(client *redis.Client, project string, maxEntries int) *RedisKVStore {
	return &RedisKVStore{client: client, key: KVHashKey(project), maxEntries: maxEntries}
}

func KVHashKey(project string) string {
	return "kv:" + project
}

func (s *RedisKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
		err   error
	)
	xray.Capture(ctx, "Redis.HGet", func(ctx1 context.Context) error {
		value, err = s.client.HGet(ctx, s.key, key).Result()
		if errors.Is(err, redis.Nil) {
			err = nil
			return nil
		}
		found = err == nil
		return err
	})
	return value, found, err
}

// kvSetScript sets a field unless it is new and the hash already holds
// ARGV[3] fields. It returns 1 when the field was written and 0 when the cap
// refused it. A cap of 0 disables the check.
var kvSetScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  local max = tonumber(ARGV[3])
  if max > 0 and redis.call('HLEN', KEYS[1]) >= max then
    return 0
  end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

func (s *RedisKVStore) Set(ctx context.Context, key, value string) error {
	var err error
	xray.Capture(ctx, "Redis.HSet", func(ctx1 context.Context) error {
		var n int64
		n, err = kvSetScript.Run(ctx, s.client, []string{s.key}, key, value, s.maxEntries).Int64()
		if err == nil {
			err = s.setResult(n)
		}

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", s.key)
			seg.AddMetadata("redis.operation", "HSET")
		}
		return err
	})
	return err
}

func (s *RedisKVStore) setResult(n int64) error {
	if n == 0 {
		return fmt.Errorf("%w: %d entries", ErrKVFull, s.maxEntries)
	}
	return nil
}

func (s *RedisKVStore) List(ctx context.Context) ([]models.KVEntry, error) {
	var out []models.KVEntry
	var err error
	xray.Capture(ctx, "Redis.HGetAll", func(ctx1 context.Context) error {
		all, getErr := s.client.HGetAll(ctx, s.key).Result()
		if getErr != nil {
			err = getErr
			return err
		}
		out = make([]models.KVEntry, 0, len(all))
		for k, v := range all {
			out = append(out, models.KVEntry{Key: k, Value: v})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []models.KVEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}
