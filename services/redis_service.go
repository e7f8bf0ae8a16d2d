package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"

	"wasmlab-server/models"
)

const (
	ResultKeyPrefix = "result:"
	ResultTTL       = 10 * time.Minute
)

type RedisService struct {
	client    *redis.Client
	resultTTL time.Duration
}

func NewRedisService(host string, port int) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
	})
	return NewRedisServiceFromClient(client)
}

func NewRedisServiceFromClient(client *redis.Client) *RedisService {
	return &RedisService{client: client, resultTTL: ResultTTL}
}

// WithResultTTL overrides how long worker results are kept
func (r *RedisService) WithResultTTL(ttl time.Duration) *RedisService {
	if ttl > 0 {
		r.resultTTL = ttl
	}
	return r
}

func (r *RedisService) Client() *redis.Client {
	return r.client
}

func ResultKey(invocationID string) string {
	return ResultKeyPrefix + invocationID
}

// PushExecutionRequest pushes an execution request to the specified queue
func (r *RedisService) PushExecutionRequest(ctx context.Context, queueKey string, req *models.ExecutionRequest) error {
	var err error
	xray.Capture(ctx, "Redis.LPush", func(ctx1 context.Context) error {
		jsonData, marshalErr := json.Marshal(req)
		if marshalErr != nil {
			err = marshalErr
			return marshalErr
		}
		err = r.client.LPush(ctx, queueKey, string(jsonData)).Err()

		// Add metadata to subsegment
		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.queue_key", queueKey)
			seg.AddMetadata("redis.operation", "LPUSH")
		}

		return err
	})
	return err
}

// PopExecutionRequest blocks up to timeout for the next request. It returns
// nil, nil when the queue stayed empty.
func (r *RedisService) PopExecutionRequest(ctx context.Context, queueKey string, timeout time.Duration) (*models.ExecutionRequest, error) {
	result, err := r.client.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// result[0] is the queue key, result[1] is the data
	var req models.ExecutionRequest
	if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
		return nil, fmt.Errorf("decode execution request: %w", err)
	}
	return &req, nil
}

// StoreResult saves a worker result under result:<invocationId>
func (r *RedisService) StoreResult(ctx context.Context, res *models.ExecutionResult) error {
	var err error
	xray.Capture(ctx, "Redis.Set", func(ctx1 context.Context) error {
		jsonData, marshalErr := json.Marshal(res)
		if marshalErr != nil {
			err = marshalErr
			return marshalErr
		}
		key := ResultKey(res.InvocationID)
		err = r.client.Set(ctx, key, jsonData, r.resultTTL).Err()

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", key)
			seg.AddMetadata("redis.operation", "SET")
		}
		return err
	})
	return err
}

// GetResult retrieves execution result for an invocation ID
func (r *RedisService) GetResult(ctx context.Context, invocationID string) (*models.ExecutionResult, error) {
	var result *models.ExecutionResult
	var finalErr error

	xray.Capture(ctx, "Redis.Get", func(ctx1 context.Context) error {
		key := ResultKey(invocationID)
		jsonData, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			result = nil
			finalErr = nil
			return nil
		}
		if err != nil {
			finalErr = err
			return err
		}

		var execResult models.ExecutionResult
		if err := json.Unmarshal([]byte(jsonData), &execResult); err != nil {
			finalErr = err
			return err
		}
		result = &execResult
		finalErr = nil

		// Add metadata to subsegment
		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", key)
			seg.AddMetadata("redis.operation", "GET")
			seg.AddMetadata("redis.invocation_id", invocationID)
		}

		return nil
	})

	return result, finalErr
}

// Ping checks Redis connection
func (r *RedisService) Ping(ctx context.Context) error {
	var err error
	xray.Capture(ctx, "Redis.Ping", func(ctx1 context.Context) error {
		err = r.client.Ping(ctx).Err()

		// Add metadata to subsegment
		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.operation", "PING")
		}

		return err
	})
	return err
}

func (r *RedisService) Close() error {
	return r.client.Close()
}
