// Package jobs 评估任务队列与工作池
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/rag-eval/internal/config"
)

var (
	// ErrQueueFull 内存队列已满
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed 队列已关闭
	ErrQueueClosed = errors.New("job queue is closed")
)

// Job 一次评估任务的执行请求，凭据只随任务传递，不落库
type Job struct {
	RunID      string `json:"run_id"`
	Credential string `json:"credential"`
}

// Queue 任务队列
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue 阻塞直到取到任务或 ctx 结束
	Dequeue(ctx context.Context) (*Job, error)
	Close() error
}

// NewQueue 按配置创建队列，redis 模式需要传入客户端
func NewQueue(cfg config.EvaluationConfig, rdb *redis.Client) (Queue, error) {
	switch cfg.Queue {
	case "", "memory":
		return NewMemoryQueue(cfg.QueueSize), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis queue requires a redis client")
		}
		return NewRedisQueue(rdb, cfg.QueueKey), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", cfg.Queue)
	}
}

// ========== 内存队列 ==========

// MemoryQueue 基于带缓冲 channel 的进程内队列
type MemoryQueue struct {
	jobs      chan Job
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
	}
}

// Enqueue 入队，队列满时立即返回 ErrQueueFull
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue 出队
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job := <-q.jobs:
		return &job, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 关闭队列，未消费的任务被丢弃
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// ========== Redis 队列 ==========

// RedisQueue 基于 Redis list 的队列，LPUSH 入队、BRPOP 出队
type RedisQueue struct {
	rdb         *redis.Client
	key         string
	pollTimeout time.Duration
}

// NewRedisQueue 创建 Redis 队列
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "rag_eval:runs"
	}
	return &RedisQueue{rdb: rdb, key: key, pollTimeout: 5 * time.Second}
}

// Enqueue 入队
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Dequeue 出队，BRPOP 超时后继续等待直到 ctx 结束
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.rdb.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis brpop: %w", err)
		}
		// BRPOP 返回 [key, value]
		if len(res) != 2 {
			return nil, fmt.Errorf("redis brpop: unexpected reply length %d", len(res))
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return nil, fmt.Errorf("bad job payload: %w", err)
		}
		return &job, nil
	}
}

// Close 客户端由调用方管理
func (q *RedisQueue) Close() error {
	return nil
}
