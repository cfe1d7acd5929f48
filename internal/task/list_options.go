package task

import (
	"slices"
	"strings"
	"time"
)

// SortOrder 决定列表按更新时间的排序方向。
type SortOrder int

const (
	// SortByUpdatedDesc 最近更新的任务在前，是默认顺序。
	SortByUpdatedDesc SortOrder = iota
	// SortByUpdatedAsc 最早更新的任务在前。
	SortByUpdatedAsc
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListOptions 描述列表与统计查询的过滤条件。零值表示不过滤。
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	Operations []string
	UpdatedGTE int64
	UpdatedLTE int64
	HasResult  *bool
	// Terminal 只匹配已终止（或未终止）的任务，nil 表示不过滤。
	Terminal *bool
	Order    SortOrder
	Query    string
}

func (opts *ListOptions) applyDefaults() {
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultListLimit
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	opts.Offset = max(opts.Offset, 0)
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.Statuses = normalizeStatuses(opts.Statuses)
	opts.Operations = normalizeOperations(opts.Operations)
	opts.Query = strings.TrimSpace(opts.Query)
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

// WithLimit 限制返回数量，超过 100 按 100 处理。
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset 跳过前 offset 条结果。
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses 按状态过滤，未知状态被忽略。
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) { opts.Statuses = slices.Clone(statuses) }
}

// WithOperations 按操作名称过滤。
func WithOperations(operations ...string) ListOption {
	return func(opts *ListOptions) { opts.Operations = slices.Clone(operations) }
}

// WithUpdatedSince 只保留 ts 之后（含）更新的任务。
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedGTE = unixOrZero(ts) }
}

// WithUpdatedUntil 只保留 ts 之前（含）更新的任务。
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedLTE = unixOrZero(ts) }
}

// WithResultPresence 按是否已有执行结果过滤。
func WithResultPresence(hasResult bool) ListOption {
	return func(opts *ListOptions) { opts.HasResult = &hasResult }
}

// WithTerminal 按是否终止过滤。终止的失败任务不会再被领取，通常需要人工处理。
func WithTerminal(terminal bool) ListOption {
	return func(opts *ListOptions) { opts.Terminal = &terminal }
}

// WithSortOrder 修改排序方向。
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// WithQuery 在任务 ID、操作、错误、交易 ID 与调度 ID 中做子串匹配。
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) { opts.Query = query }
}

func buildListOptions(opts []ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func unixOrZero(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Unix()
}

func normalizeStatuses(input []Status) []Status {
	var result []Status
	for _, status := range input {
		if IsValidStatus(status) && !slices.Contains(result, status) {
			result = append(result, status)
		}
	}
	return result
}

func normalizeOperations(input []string) []string {
	var result []string
	for _, op := range input {
		op = strings.TrimSpace(op)
		if op != "" && !slices.Contains(result, op) {
			result = append(result, op)
		}
	}
	return result
}

// matches 判断任务是否满足过滤条件，MemoryStore 使用；MySQLStore 用 SQL 表达相同条件。
func (opts ListOptions) matches(task *Task) bool {
	switch {
	case len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, task.Status):
		return false
	case len(opts.Operations) > 0 && !slices.Contains(opts.Operations, task.Operation):
		return false
	case opts.UpdatedGTE > 0 && task.UpdatedAt < opts.UpdatedGTE:
		return false
	case opts.UpdatedLTE > 0 && task.UpdatedAt > opts.UpdatedLTE:
		return false
	case opts.HasResult != nil && task.Result.Empty() == *opts.HasResult:
		return false
	case opts.Terminal != nil && task.Terminal != *opts.Terminal:
		return false
	}
	if opts.Query == "" {
		return true
	}
	fields := []string{task.ID, task.Operation, task.LastError, task.ErrorCode}
	if task.Result != nil {
		fields = append(fields, task.Result.ScheduleID)
		fields = append(fields, task.Result.TransactionIDs...)
	}
	return slices.ContainsFunc(fields, func(f string) bool { return strings.Contains(f, opts.Query) })
}
