// Package queue is the Redis-backed job queue carrying execution jobs from
// the API server to the workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"code-runner/internal/config"
)

// Job instructs a worker to process one execution. It carries everything
// the worker needs so it never re-reads the originating request.
type Job struct {
	ExecutionID string `json:"executionId"`
	Code        string `json:"code"`
	Language    string `json:"language"`
}

// Client is a Redis list queue. Producers RPUSH, consumers BLPOP, so
// delivery is FIFO per Redis instance and at-least-once.
type Client struct {
	client *redis.Client
	name   string
	block  time.Duration
}

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, cfg config.QueueConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Str("queue", cfg.Name).Msg("connected to Redis")

	return &Client{
		client: client,
		name:   cfg.Name,
		block:  cfg.DequeueBlock,
	}, nil
}

// Enqueue appends a job to the queue.
func (c *Client) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	if err := c.client.RPush(ctx, c.name, payload).Err(); err != nil {
		return fmt.Errorf("pushing job to queue: %w", err)
	}
	return nil
}

// Dequeue blocks for up to the configured block interval and returns the
// next job, or (nil, nil) when the queue stayed empty.
func (c *Client) Dequeue(ctx context.Context) (*Job, error) {
	result, err := c.client.BLPop(ctx, c.block, c.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("popping job from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("decoding job payload: %w", err)
	}
	return &job, nil
}

// Healthy checks queue connectivity.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
