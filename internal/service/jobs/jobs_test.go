package jobs

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/rag-eval/internal/config"
	"github.com/ashwinyue/rag-eval/internal/logger"
)

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	if err := q.Enqueue(ctx, Job{RunID: "r1", Credential: "k"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(ctx, Job{RunID: "r2"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := q.Enqueue(ctx, Job{RunID: "r3"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() on full queue error = %v, want ErrQueueFull", err)
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if job.RunID != "r1" || job.Credential != "k" {
		t.Errorf("Dequeue() = %+v, want r1", job)
	}

	_ = q.Close()
	_ = q.Close()
	if err := q.Enqueue(ctx, Job{RunID: "r4"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() after close error = %v, want ErrQueueClosed", err)
	}
}

func TestMemoryQueue_DequeueCancelled(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dequeue() error = %v, want DeadlineExceeded", err)
	}
}

func TestNewQueue(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EvaluationConfig
		rdb     *redis.Client
		wantErr bool
	}{
		{"default memory", config.EvaluationConfig{}, nil, false},
		{"memory", config.EvaluationConfig{Queue: "memory", QueueSize: 4}, nil, false},
		{"redis without client", config.EvaluationConfig{Queue: "redis"}, nil, true},
		{"redis", config.EvaluationConfig{Queue: "redis"}, redis.NewClient(&redis.Options{Addr: "localhost:0"}), false},
		{"unknown", config.EvaluationConfig{Queue: "kafka"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQueue(tt.cfg, tt.rdb)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewQueue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.rdb != nil {
				_ = tt.rdb.Close()
			}
		})
	}
}

func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	key := "rag_eval:test:" + strings.ReplaceAll(t.Name(), "/", "_")
	ctx := context.Background()
	defer rdb.Del(ctx, key)

	q := NewRedisQueue(rdb, key)
	q.pollTimeout = time.Second

	for _, id := range []string{"r1", "r2"} {
		if err := q.Enqueue(ctx, Job{RunID: id, Credential: "k"}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	for _, want := range []string{"r1", "r2"} {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if job.RunID != want || job.Credential != "k" {
			t.Errorf("Dequeue() = %+v, want %s", job, want)
		}
	}
}

// ========== Worker ==========

type recordingHandler struct {
	mu      sync.Mutex
	handled []string
	aborted map[string]error
	panicOn string
	done    chan struct{}
	expect  int
}

func newRecordingHandler(expect int) *recordingHandler {
	return &recordingHandler{aborted: make(map[string]error), done: make(chan struct{}), expect: expect}
}

func (h *recordingHandler) Handle(ctx context.Context, job Job) error {
	defer h.tick()
	if job.RunID == h.panicOn {
		panic("boom")
	}
	h.mu.Lock()
	h.handled = append(h.handled, job.RunID)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) Abort(ctx context.Context, runID string, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aborted[runID] = cause
}

func (h *recordingHandler) tick() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expect--
	if h.expect == 0 {
		close(h.done)
	}
}

func TestWorker_ProcessesJobsAndRecoversPanics(t *testing.T) {
	q := NewMemoryQueue(8)
	h := newRecordingHandler(3)
	h.panicOn = "bad"

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(q, h, logger.Nop(), 2)
	w.Start(ctx)

	for _, id := range []string{"r1", "bad", "r2"} {
		if err := q.Enqueue(ctx, Job{RunID: id}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
	cancel()
	w.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.handled) != 2 {
		t.Errorf("handled = %v, want 2 jobs", h.handled)
	}
	cause, ok := h.aborted["bad"]
	if !ok || !strings.Contains(cause.Error(), "boom") {
		t.Errorf("aborted = %v, want panic recorded for bad", h.aborted)
	}
}

func TestWorker_StopsOnQueueClose(t *testing.T) {
	q := NewMemoryQueue(1)
	w := NewWorker(q, newRecordingHandler(1), logger.Nop(), 1)
	w.Start(context.Background())

	_ = q.Close()

	stopped := make(chan struct{})
	go func() {
		w.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}
