package services

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"
)

// PayloadCache remembers the last debug payload used per guest file
type PayloadCache interface {
	Get(ctx context.Context, fileKey string) (string, bool, error)
	Put(ctx context.Context, fileKey, payload string) error
	Delete(ctx context.Context, fileKey string) error
}

type MemoryPayloadCache struct {
	mu       sync.RWMutex
	payloads map[string]string
}

func NewMemoryPayloadCache() *MemoryPayloadCache {
	return &MemoryPayloadCache{payloads: make(map[string]string)}
}

func (c *MemoryPayloadCache) Get(ctx context.Context, fileKey string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.payloads[fileKey]
	return p, ok, nil
}

func (c *MemoryPayloadCache) Put(ctx context.Context, fileKey, payload string) error {
	c.mu.Lock()
	c.payloads[fileKey] = payload
	c.mu.Unlock()
	return nil
}

func (c *MemoryPayloadCache) Delete(ctx context.Context, fileKey string) error {
	c.mu.Lock()
	delete(c.payloads, fileKey)
	c.mu.Unlock()
	return nil
}

// RedisPayloadCache stores payloads under payload:<fileKey> without expiry
type RedisPayloadCache struct {
	client *redis.Client
}

func NewRedisPayloadCache(client *redis.Client) *RedisPayloadCache {
	return &RedisPayloadCache{client: client}
}

func PayloadKey(fileKey string) string {
	return "payload:" + fileKey
}

func (c *RedisPayloadCache) Get(ctx context.Context, fileKey string) (string, bool, error) {
	var (
		payload string
		found   bool
		err     error
	)
	xray.Capture(ctx, "Redis.Get", func(ctx1 context.Context) error {
		payload, err = c.client.Get(ctx, PayloadKey(fileKey)).Result()
		if errors.Is(err, redis.Nil) {
			err = nil
			return nil
		}
		found = err == nil
		return err
	})
	return payload, found, err
}

func (c *RedisPayloadCache) Put(ctx context.Context, fileKey, payload string) error {
	var err error
	xray.Capture(ctx, "Redis.Set", func(ctx1 context.Context) error {
		err = c.client.Set(ctx, PayloadKey(fileKey), payload, 0).Err()
		return err
	})
	return err
}

func (c *RedisPayloadCache) Delete(ctx context.Context, fileKey string) error {
	var err error
	xray.Capture(ctx, "Redis.Del", func(ctx1 context.Context) error {
		err = c.client.Del(ctx, PayloadKey(fileKey)).Err()
		return err
	})
	return err
}
