package task

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueueRequeuesFailedHandler(t *testing.T) {
	queue := NewMemoryQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := queue.Publish(ctx, "job-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var (
		mu    sync.Mutex
		calls int
	)
	done := make(chan struct{})
	go func() {
		_ = queue.Consume(ctx, 2, func(_ context.Context, id string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return stdErrors.New("transient")
			}
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("job was not redelivered")
	}
	cancel()
	if queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", queue.Len())
	}
}

func TestMemoryQueueClosed(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Publish(context.Background(), "job"); err == nil {
		t.Fatal("expected publish on closed queue to fail")
	}
	// Consume 在队列关闭后立即返回
	if err := queue.Consume(context.Background(), 1, func(context.Context, string) error { return nil }); err != nil {
		t.Fatalf("consume on closed queue: %v", err)
	}
}
