package task

import (
	"context"
	"log/slog"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/mirror"
	"LedgerAgent-Kit/pkg/logger"
)

// RecoveryHandler 定义了在任务执行失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 根据失败原因与已知的部分结果尝试补偿。
	// 返回非 nil 结果时任务按成功落库；返回 nil 则继续失败流程。
	Recover(ctx context.Context, task *Task, cause error, partial *ExecutionResult) (*ExecutionResult, error)
}

// TransactionLookup 查询交易在镜像节点上的共识记录。
type TransactionLookup interface {
	Transaction(ctx context.Context, id ledger.TransactionID) ([]mirror.Txn, error)
}

// MirrorReconciler 在回执获取失败时向镜像节点核对交易的最终结果。
// 所有交易都以 SUCCESS 达成共识时，任务视为成功并标记 Reconciled。
type MirrorReconciler struct {
	lookup TransactionLookup
}

// NewMirrorReconciler 构造 MirrorReconciler。
func NewMirrorReconciler(lookup TransactionLookup) *MirrorReconciler {
	return &MirrorReconciler{lookup: lookup}
}

const resultSuccess = "SUCCESS"

// Recover 实现 RecoveryHandler。
func (r *MirrorReconciler) Recover(ctx context.Context, task *Task, cause error, partial *ExecutionResult) (*ExecutionResult, error) {
	if r == nil || r.lookup == nil || partial == nil || len(partial.TransactionIDs) == 0 {
		return nil, nil
	}
	for _, raw := range partial.TransactionIDs {
		id, err := ledger.ParseTransactionID(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "无法解析交易 ID "+raw)
		}
		records, err := r.lookup.Transaction(ctx, id)
		if err != nil {
			if mirror.IsNotFound(err) || xerrors.HasCode(err, xerrors.CodeNotFound) {
				// 镜像节点尚未收录，交给常规失败流程
				return nil, nil
			}
			return nil, err
		}
		if !succeeded(records) {
			return nil, nil
		}
	}

	reconciled := cloneTask(&Task{Result: partial}).Result
	reconciled.Reconciled = true
	logger.L().Info("镜像节点核对交易成功",
		slog.String("task_id", task.ID),
		slog.String("operation", task.Operation),
		slog.Any("transaction_ids", reconciled.TransactionIDs),
		slog.String("cause", errorString(cause)),
	)
	return reconciled, nil
}

// succeeded 只看非调度记录，调度交易的内层执行结果与提交本身无关。
func succeeded(records []mirror.Txn) bool {
	found := false
	for _, rec := range records {
		if rec.Scheduled {
			continue
		}
		if rec.Result != resultSuccess {
			return false
		}
		found = true
	}
	return found
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
