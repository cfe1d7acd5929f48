package task

import "context"

// Store 持久化操作任务。memory 与 mysql 两种实现需满足相同语义：
//   - Create 遇到重复 ID 返回 ErrTaskConflict；
//   - Claim 把 pending 或可重试的 failed 任务置为 running 并累加 Attempts，
//     已成功的返回 ErrTaskCompleted，running 返回 ErrTaskConflict，终态或耗尽的返回 ErrTaskExhausted；
//   - List 与 Stats 共用 ListOptions 过滤条件。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Claim(ctx context.Context, id string) (*Task, error)
	MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error
	MarkFailed(ctx context.Context, id string, failure Failure) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	Close() error
}
