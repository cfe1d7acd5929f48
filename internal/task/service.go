package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"LedgerAgent-Kit/internal/agent"
	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/pkg/logger"
)

const defaultMaxRetries = 3

// Service 是 API 层使用的异步操作入口：落库、入队和查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造任务服务。maxRetries 非正数时取 3。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

func (s *Service) ready(needProducer bool) error {
	if s.store == nil || (needProducer && s.producer == nil) {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}
	return nil
}

// Submit 落库并投递一个操作任务。req.ID 非空时按 ID 幂等：已存在的任务原样返回，
// 不会重复入队。入队失败的任务直接标记为终态失败。
func (s *Service) Submit(ctx context.Context, req agent.Request, metadata map[string]any) (*Task, error) {
	operation := strings.TrimSpace(req.Operation)
	if operation == "" {
		return nil, xerrors.New(CodeTaskValidation, "操作名称不能为空")
	}
	if err := s.ready(true); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	} else if existing, err := s.existing(ctx, id); err != nil || existing != nil {
		return existing, err
	}

	task := &Task{
		ID:         id,
		Operation:  operation,
		Params:     req.Params,
		Options:    req.Call,
		Metadata:   cloneMetadata(metadata),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, task); err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			if existing, getErr := s.existing(ctx, id); getErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if err := s.producer.Publish(ctx, id); err != nil {
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "发布任务到队列失败")
		logger.L().Error("任务入队失败", slog.String("task_id", id), slog.Any("error", err))
		if markErr := s.store.MarkFailed(ctx, id, Failure{Code: CodeTaskPublish, Message: wrapped.Error(), Terminal: true}); markErr != nil {
			logger.L().Warn("入队失败的任务未能落库", slog.String("task_id", id), slog.Any("error", markErr))
		}
		return nil, wrapped
	}

	logger.AuditEvent(ctx, "task.submitted",
		slog.String("task_id", id),
		slog.String("operation", operation),
		slog.Int("max_retries", task.MaxRetries),
	)
	return task, nil
}

// existing 返回已存在的任务；不存在时返回 (nil, nil)。
func (s *Service) existing(ctx context.Context, id string) (*Task, error) {
	task, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		return task, nil
	case stdErrors.Is(err, ErrTaskNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// Get 返回指定任务。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if err := s.ready(false); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// List 按过滤条件分页列出任务。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if err := s.ready(false); err != nil {
		return nil, err
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 统计符合过滤条件的任务。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if err := s.ready(false); err != nil {
		return TaskStats{}, err
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// WaitUntilCompleted 轮询任务直到 Settled 或 ctx 结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Settled() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 依次关闭队列生产者与存储。
func (s *Service) Close() error {
	var errs []error
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return stdErrors.Join(errs...)
}
