package task

import (
	"context"
	"log/slog"
	"sync"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/pkg/logger"
)

// MemoryQueue 是基于 channel 的进程内队列。与 Redis、RabbitMQ 队列一致，
// handler 返回错误的任务会重新入队；缓冲区已满时丢弃并记录日志。
type MemoryQueue struct {
	ch     chan string
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Publish 投递任务，缓冲区满时阻塞直到 ctx 结束。
func (q *MemoryQueue) Publish(ctx context.Context, taskID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	}
	select {
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.CodeQueueFailure, ctx.Err(), "投递任务超时")
	case q.ch <- taskID:
		return nil
	}
}

// Len 返回排队中的任务数。
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Consume 以 workerCount 个协程消费任务，直到 ctx 取消或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < max(workerCount, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case taskID, ok := <-q.ch:
					if !ok {
						return
					}
					if err := handler(ctx, taskID); err != nil && ctx.Err() == nil {
						q.requeue(taskID, err)
					}
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) requeue(taskID string, cause error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- taskID:
	default:
		logger.L().Warn("内存队列已满，任务未能重新入队",
			slog.String("task_id", taskID),
			slog.Any("error", cause),
		)
	}
}

// Close 关闭队列，正在运行的 Consume 在排空后返回。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
