package task

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"LedgerAgent-Kit/internal/agent"
	"LedgerAgent-Kit/internal/dispatch"
	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/observability/alerting"
	"LedgerAgent-Kit/internal/observability/metrics"
	"LedgerAgent-Kit/pkg/logger"
)

// Executor 定义了处理器所需的操作执行能力，*agent.Kit 满足该接口。
type Executor interface {
	Run(ctx context.Context, req agent.Request) (dispatch.Response, error)
}

// Processor 负责从队列消费任务并交给 Executor 执行。
//
// 交易一旦提交到账本，无论结果如何都不会被重新执行，否则同一操作会以新的交易 ID
// 再次上链。只有构建阶段的可重试错误会重新排队。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
	now         func() time.Time
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("task.processor"),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) ||
			stdErrors.Is(err, ErrTaskExhausted) || stdErrors.Is(err, ErrTaskConflict) {
			p.logger.DebugContext(ctx, "跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.ErrorContext(ctx, "领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, "", "claim")
		return err
	}

	resp, runErr := p.executor.Run(ctx, agent.Request{
		ID:        task.ID,
		Operation: task.Operation,
		Params:    task.Params,
		Call:      task.Options,
	})
	if runErr != nil {
		return p.handleBuildFailure(ctx, task, runErr)
	}

	result := summarize(resp)
	if !resp.Success() {
		return p.handleLedgerFailure(ctx, task, resp, result)
	}
	return p.markSucceeded(ctx, task, result)
}

// summarize 提取响应中的交易 ID 与调度 ID，并保留完整响应。
func summarize(resp dispatch.Response) ExecutionResult {
	out := ExecutionResult{Outcome: resp.Outcome.String()}
	for _, r := range resp.Results {
		if r.TransactionID != "" {
			out.TransactionIDs = append(out.TransactionIDs, r.TransactionID)
		}
		if r.ScheduleID != "" {
			out.ScheduleID = r.ScheduleID
		}
	}
	if resp.Bytes != nil && resp.Bytes.TransactionID != "" {
		out.TransactionIDs = append(out.TransactionIDs, resp.Bytes.TransactionID)
	}
	if resp.Schedule != nil {
		if resp.Schedule.TransactionID != "" {
			out.TransactionIDs = append(out.TransactionIDs, resp.Schedule.TransactionID)
		}
		out.ScheduleID = resp.Schedule.ScheduleID
	}
	if raw, err := json.Marshal(resp); err == nil {
		out.Response = raw
	}
	return out
}

func failureCause(resp dispatch.Response) error {
	for _, r := range resp.Results {
		if r.Success {
			continue
		}
		if r.Err != nil {
			return r.Err
		}
		return xerrors.New(xerrors.CodeSubmissionFailure, r.Error)
	}
	if resp.Schedule != nil && !resp.Schedule.Success {
		return xerrors.New(xerrors.CodeSubmissionFailure, resp.Schedule.Error)
	}
	return xerrors.New(xerrors.CodeSubmissionFailure, "操作未产生结果")
}

func (p *Processor) markSucceeded(ctx context.Context, task *Task, result ExecutionResult) error {
	if err := p.store.MarkSucceeded(ctx, task.ID, result); err != nil {
		// 交易已上链，不能重新排队，只能告警等待人工核对。
		p.logger.ErrorContext(ctx, "标记任务成功状态失败", slog.Any("error", err), slog.String("task_id", task.ID))
		p.emitAlert(ctx, task, xerrors.CodeStorageFailure, err, firstOf(result.TransactionIDs), "persist")
		return nil
	}
	metrics.OperationJobs.WithLabelValues(string(StatusSucceeded)).Inc()
	logger.AuditEvent(ctx, "task.succeeded",
		slog.String("task_id", task.ID),
		slog.String("operation", task.Operation),
		slog.String("outcome", result.Outcome),
		slog.Any("transaction_ids", result.TransactionIDs),
		slog.String("schedule_id", result.ScheduleID),
		slog.Bool("reconciled", result.Reconciled),
	)
	return nil
}

// handleBuildFailure 处理交易构建或分发阶段的错误，此时尚未有交易提交。
func (p *Processor) handleBuildFailure(ctx context.Context, task *Task, runErr error) error {
	code := xerrors.CodeOf(runErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.RetryableError(runErr)
	terminal := !retryable || task.Attempts >= task.MaxRetries

	if err := p.store.MarkFailed(ctx, task.ID, Failure{Code: code, Message: runErr.Error(), Terminal: terminal}); err != nil {
		p.logger.ErrorContext(ctx, "标记任务失败状态出错", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	logger.AuditEvent(ctx, "task.failed",
		slog.String("task_id", task.ID),
		slog.String("operation", task.Operation),
		slog.Bool("terminal", terminal),
		slog.String("error", runErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
		metrics.OperationJobs.WithLabelValues(string(StatusFailed)).Inc()
	}
	p.emitAlert(ctx, task, code, runErr, "", stage)

	if !terminal {
		if p.producer == nil {
			return xerrors.New(CodeTaskPublish, "未配置任务生产者")
		}
		if err := p.producer.Publish(ctx, task.ID); err != nil {
			return xerrors.Wrap(CodeTaskPublish, err, fmt.Sprintf("任务 %s 重投失败", task.ID))
		}
		p.logger.DebugContext(ctx, "任务已重新排队", slog.String("task_id", task.ID), slog.Int("attempts", task.Attempts))
	}
	return nil
}

// handleLedgerFailure 处理已提交交易的失败。先尝试补偿，否则以终态失败落库。
func (p *Processor) handleLedgerFailure(ctx context.Context, task *Task, resp dispatch.Response, result ExecutionResult) error {
	cause := failureCause(resp)
	if p.recovery != nil {
		recovered, err := p.recovery.Recover(ctx, task, cause, &result)
		switch {
		case err != nil:
			wrapped := xerrors.Wrap(CodeTaskCompensate, err, "任务补偿失败")
			p.logger.ErrorContext(ctx, "执行补偿逻辑失败", slog.Any("error", wrapped), slog.String("task_id", task.ID))
			p.emitAlert(ctx, task, CodeTaskCompensate, wrapped, firstOf(result.TransactionIDs), "compensate")
		case recovered != nil:
			return p.markSucceeded(ctx, task, *recovered)
		}
	}

	code := xerrors.CodeOf(cause)
	if code == xerrors.CodeUnknown {
		code = xerrors.CodeSubmissionFailure
	}
	failure := Failure{Code: code, Message: cause.Error(), Terminal: true, Result: &result}
	if err := p.store.MarkFailed(ctx, task.ID, failure); err != nil {
		p.logger.ErrorContext(ctx, "标记任务失败状态出错", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	metrics.OperationJobs.WithLabelValues(string(StatusFailed)).Inc()
	logger.AuditEvent(ctx, "task.failed",
		slog.String("task_id", task.ID),
		slog.String("operation", task.Operation),
		slog.Bool("terminal", true),
		slog.Any("transaction_ids", result.TransactionIDs),
		slog.String("error", cause.Error()),
		slog.String("error_code", string(code)),
	)
	p.emitAlert(ctx, task, code, cause, firstOf(result.TransactionIDs), "ledger")
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, txID, stage string) {
	if p == nil || p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:          code,
		Message:       attrs.Message,
		Severity:      attrs.Severity,
		TaskID:        task.ID,
		Operation:     task.Operation,
		TransactionID: txID,
		Attempts:      task.Attempts,
		MaxRetries:    task.MaxRetries,
		Metadata:      map[string]string{"stage": stage},
		OccurredAt:    p.now(),
	}
	if cause != nil {
		event.Message = cause.Error()
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
			slog.String("stage", stage),
		)
	}
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
