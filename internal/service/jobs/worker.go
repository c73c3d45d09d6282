package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ashwinyue/rag-eval/internal/logger"
)

// Handler 任务处理器
type Handler interface {
	// Handle 执行任务，返回的错误已由处理器记录到任务状态
	Handle(ctx context.Context, job Job) error
	// Abort 处理器自身未能记录的失败（如 panic）由工作池兜底写入
	Abort(ctx context.Context, runID string, cause error)
}

// Worker 任务工作池
type Worker struct {
	queue       Queue
	handler     Handler
	log         *logger.Logger
	concurrency int
	retryDelay  time.Duration
	wg          sync.WaitGroup
}

// NewWorker 创建工作池
func NewWorker(queue Queue, handler Handler, log *logger.Logger, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		handler:     handler,
		log:         log.With("component", "JobWorker"),
		concurrency: concurrency,
		retryDelay:  time.Second,
	}
}

// Start 启动工作协程，ctx 结束后退出
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx, i+1)
	}
}

// Wait 等待所有工作协程退出
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				w.log.Info("Worker loop stopped", "worker_id", workerID)
				return
			}
			w.log.Warn("Dequeue failed", "worker_id", workerID, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.retryDelay):
			}
			continue
		}

		w.process(ctx, workerID, *job)
	}
}

func (w *Worker) process(ctx context.Context, workerID int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic", "worker_id", workerID, "run_id", job.RunID, "panic", r)
			w.handler.Abort(context.WithoutCancel(ctx), job.RunID, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := w.handler.Handle(ctx, job); err != nil {
		w.log.Warn("Job finished with error", "worker_id", workerID, "run_id", job.RunID, "error", err)
	}
}
