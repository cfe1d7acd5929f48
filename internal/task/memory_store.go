package task

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	xerrors "LedgerAgent-Kit/internal/errors"
)

// MemoryStore 把任务保存在进程内存中，供测试与单实例部署使用。读写均返回副本。
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: map[string]*Task{}, now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, task *Task) error {
	if task == nil || strings.TrimSpace(task.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[task.ID]; exists {
		return ErrTaskConflict
	}
	task.UpdatedAt = m.now().Unix()
	task.CreatedAt = cmp.Or(task.CreatedAt, task.UpdatedAt)
	task.Status = cmp.Or(task.Status, StatusPending)
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if task, ok := m.tasks[id]; ok {
		return cloneTask(task), nil
	}
	return nil, ErrTaskNotFound
}

// update 在写锁内修改任务并刷新 UpdatedAt。fn 返回错误时不刷新。
func (m *MemoryStore) update(id string, fn func(*Task) error) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if err := fn(task); err != nil {
		return cloneTask(task), err
	}
	task.UpdatedAt = m.now().Unix()
	return cloneTask(task), nil
}

func (m *MemoryStore) Claim(_ context.Context, id string) (*Task, error) {
	return m.update(id, func(task *Task) error {
		switch {
		case task.Status == StatusSucceeded:
			return ErrTaskCompleted
		case task.Status == StatusRunning:
			return ErrTaskConflict
		case task.Terminal || task.Attempts >= task.MaxRetries:
			return ErrTaskExhausted
		}
		task.Status = StatusRunning
		task.Attempts++
		task.LastError, task.ErrorCode = "", ""
		return nil
	})
}

func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result ExecutionResult) error {
	_, err := m.update(id, func(task *Task) error {
		task.Status = StatusSucceeded
		task.Result = cloneResult(&result)
		task.LastError, task.ErrorCode = "", ""
		return nil
	})
	return err
}

// MarkFailed 记录失败。failure.Result 为空时保留任务原有的结果。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, failure Failure) error {
	_, err := m.update(id, func(task *Task) error {
		task.Status = StatusFailed
		task.Terminal = failure.Terminal
		task.LastError = failure.Message
		task.ErrorCode = string(failure.Code)
		if failure.Result != nil {
			task.Result = cloneResult(failure.Result)
		}
		return nil
	})
	return err
}

// List 按 UpdatedAt、CreatedAt、ID 排序后分页，默认新的在前。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()
	matched := m.filter(opts)

	slices.SortFunc(matched, func(a, b *Task) int {
		c := cmp.Or(
			cmp.Compare(b.UpdatedAt, a.UpdatedAt),
			cmp.Compare(b.CreatedAt, a.CreatedAt),
			strings.Compare(b.ID, a.ID),
		)
		if opts.Order == SortByUpdatedAsc {
			return -c
		}
		return c
	})

	if opts.Offset >= len(matched) {
		return []*Task{}, nil
	}
	matched = matched[opts.Offset:]
	return matched[:min(len(matched), opts.Limit)], nil
}

func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()
	var stats TaskStats
	for _, task := range m.filter(opts) {
		stats.add(task)
	}
	return stats, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) filter(opts ListOptions) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if opts.matches(task) {
			out = append(out, cloneTask(task))
		}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
