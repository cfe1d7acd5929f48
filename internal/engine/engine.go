// Package engine 执行在途交易：直接签名提交、包装为调度交易后提交，或者序列化为
// 未签名字节交由外部签名。所有提交期错误都被折叠进 Result，不会向调用方抛出。
package engine

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/keys"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/notes"
	"LedgerAgent-Kit/internal/observability/metrics"
	"LedgerAgent-Kit/internal/session"
	"LedgerAgent-Kit/internal/txbuilder"
	"LedgerAgent-Kit/pkg/logger"
)

// Options 控制一次执行。ScheduleAdminKey 非空时替代默认的管理密钥列表。
type Options struct {
	Schedule               bool   `json:"schedule,omitempty"`
	ScheduleMemo           string `json:"scheduleMemo,omitempty"`
	SchedulePayerAccountID string `json:"schedulePayerAccountId,omitempty"`
	ScheduleAdminKey       string `json:"scheduleAdminKey,omitempty"`
}

// Result 是一次提交的结果。失败时保留交易 ID 以便关联；SchedulePayerAccountID
// 只在调度路径设置。
type Result struct {
	Success                bool            `json:"success"`
	Receipt                *ledger.Receipt `json:"receipt,omitempty"`
	Error                  string          `json:"error,omitempty"`
	TransactionID          string          `json:"transactionId,omitempty"`
	ScheduleID             string          `json:"scheduleId,omitempty"`
	SchedulePayerAccountID string          `json:"schedulePayerAccountId,omitempty"`
	Notes                  []string        `json:"notes,omitempty"`

	// Err 是失败的原始错误，不参与序列化。
	Err error `json:"-"`
}

// BytesResult 是 returnBytes 模式的输出：base64 编码的未签名交易。
type BytesResult struct {
	Bytes         string   `json:"bytes"`
	TransactionID string   `json:"transactionId"`
	Scheduled     bool     `json:"scheduled"`
	Notes         []string `json:"notes,omitempty"`
}

// Engine 根据会话上下文执行交易。Engine 不保存在途状态，可并发使用。
type Engine struct {
	session  *session.Context
	lookup   keys.KeyLookup
	resolver *keys.Resolver
	nodes    []ledger.AccountID
	now      func() time.Time
	logger   *slog.Logger
}

// Option 定义引擎的可选配置。
type Option func(*Engine)

// WithClock 替换时间源。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithNodeAccountIDs 设置签名者未提供节点时使用的提交节点。
func WithNodeAccountIDs(nodes ...ledger.AccountID) Option {
	return func(e *Engine) {
		e.nodes = append([]ledger.AccountID(nil), nodes...)
	}
}

// WithResolver 指定解析 ScheduleAdminKey 的密钥解析器。
func WithResolver(r *keys.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// New 创建执行引擎。lookup 用于查询终端用户的链上密钥，可为空。
func New(sess *session.Context, lookup keys.KeyLookup, opts ...Option) *Engine {
	e := &Engine{
		session: sess,
		lookup:  lookup,
		now:     time.Now,
		logger:  logger.Named("engine"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.resolver == nil {
		e.resolver = keys.NewResolver(sess.Signer(), lookup)
	}
	return e
}

// Execute 使用会话签名者执行交易。没有交易时返回 Success=false。
func (e *Engine) Execute(ctx context.Context, p *txbuilder.Pending, opts Options) Result {
	return e.execute(ctx, p, e.session.Signer(), opts)
}

// ExecuteWithSigner 使用另一个签名身份执行交易。交易一旦冻结，付款方与交易 ID 即已固定，
// 因此已冻结的交易直接返回 ILLEGAL_STATE。
func (e *Engine) ExecuteWithSigner(ctx context.Context, p *txbuilder.Pending, signer ledger.Signer, opts Options) (Result, error) {
	if p.IsFrozen() {
		return Result{}, xerrors.New(xerrors.CodeIllegalState, "交易已冻结，无法更换签名者")
	}
	if signer == nil {
		return Result{}, xerrors.New(xerrors.CodeInitializationFailure, "签名者不能为空")
	}
	return e.execute(ctx, p, signer, opts), nil
}

func (e *Engine) execute(ctx context.Context, p *txbuilder.Pending, signer ledger.Signer, opts Options) Result {
	if p.Transaction() == nil {
		return Result{Success: false, Error: "没有待执行的交易", Notes: p.Notes().Strings()}
	}
	n := p.Notes()
	path := pathDirect
	tx := p.Transaction()
	var payer string
	if opts.Schedule {
		path = pathSchedule
		wrapped, extra, err := e.wrap(ctx, p, signer, opts)
		n = notes.Merge(n, extra)
		if err != nil {
			return e.fail(ctx, p.Operation(), path, Result{Err: err, Notes: n.Strings()})
		}
		tx = wrapped
		payer = schedulePayerOf(tx)
	}
	failure := func(err error, receipt *ledger.Receipt) Result {
		return e.fail(ctx, p.Operation(), path, Result{
			Receipt:                receipt,
			TransactionID:          tx.TransactionID().String(),
			SchedulePayerAccountID: payer,
			Notes:                  n.Strings(),
			Err:                    err,
		})
	}

	if err := e.freeze(tx, signer.AccountID(), signer.NodeAccountIDs()); err != nil {
		return failure(err, nil)
	}
	txID := tx.TransactionID().String()

	resp, err := signer.Execute(ctx, tx)
	if err != nil {
		return failure(xerrors.Wrap(xerrors.CodeSubmissionFailure, err, "提交交易失败"), nil)
	}
	receipt, err := resp.Receipt(ctx)
	if err != nil {
		var partial *ledger.Receipt
		if receipt.Status != "" {
			partial = &receipt
		}
		return failure(xerrors.Wrap(xerrors.CodeSubmissionFailure, err, "交易未成功"), partial)
	}

	result := Result{Success: true, Receipt: &receipt, TransactionID: txID, SchedulePayerAccountID: payer, Notes: n.Strings()}
	if receipt.ScheduleID != nil {
		result.ScheduleID = receipt.ScheduleID.String()
	}
	metrics.ObserveExecution(path, true)
	logger.AuditEvent(ctx, "ledger.execute",
		slog.String("operation", p.Operation()),
		slog.String("path", path),
		slog.String("transaction_id", txID),
		slog.String("schedule_id", result.ScheduleID),
		slog.String("status", string(receipt.Status)),
		slog.Bool("success", true),
	)
	return result
}

// fail 记录失败并补全 r 的 Success 与 Error 字段。
func (e *Engine) fail(ctx context.Context, op, path string, r Result) Result {
	r.Success = false
	r.Error = r.Err.Error()
	e.logger.ErrorContext(ctx, "交易执行失败",
		slog.String("operation", op),
		slog.String("path", path),
		slog.String("transaction_id", r.TransactionID),
		slog.Any("error", r.Err),
	)
	metrics.ObserveExecution(path, false)
	logger.AuditEvent(ctx, "ledger.execute",
		slog.String("operation", op),
		slog.String("path", path),
		slog.String("transaction_id", r.TransactionID),
		slog.Bool("success", false),
		slog.String("error", r.Error),
	)
	return r
}

func schedulePayerOf(tx ledger.Transaction) string {
	if body, ok := tx.Body().(*ledger.ScheduleCreate); ok && body.PayerAccountID != nil {
		return body.PayerAccountID.String()
	}
	return ""
}

// TransactionBytes 与 Execute 做相同的调度包装决策，但只冻结并序列化交易，不签名也不提交。
// 交易 ID 归属终端用户账户，没有终端用户时归属代理账户。
func (e *Engine) TransactionBytes(ctx context.Context, p *txbuilder.Pending, opts Options) (BytesResult, error) {
	if p.Transaction() == nil {
		return BytesResult{}, xerrors.New(xerrors.CodeIllegalState, "没有待序列化的交易")
	}
	signer := e.session.Signer()
	n := p.Notes()
	tx := p.Transaction()
	if opts.Schedule {
		wrapped, extra, err := e.wrap(ctx, p, signer, opts)
		n = notes.Merge(n, extra)
		if err != nil {
			return BytesResult{}, err
		}
		tx = wrapped
	}

	payer := e.session.AgentAccountID()
	if user, ok := e.session.UserAccountID(); ok {
		payer = user
	}
	if err := e.freeze(tx, payer, signer.NodeAccountIDs()); err != nil {
		return BytesResult{}, err
	}
	raw, err := tx.ToBytes()
	if err != nil {
		return BytesResult{}, xerrors.Wrap(xerrors.CodeUnknown, err, "序列化交易失败")
	}
	out := BytesResult{
		Bytes:         base64.StdEncoding.EncodeToString(raw),
		TransactionID: tx.TransactionID().String(),
		Scheduled:     opts.Schedule,
		Notes:         n.Strings(),
	}
	metrics.ObserveExecution(pathBytes, true)
	logger.AuditEvent(ctx, "ledger.bytes",
		slog.String("operation", p.Operation()),
		slog.String("transaction_id", out.TransactionID),
		slog.Bool("scheduled", opts.Schedule),
	)
	return out, nil
}

// freeze 补齐交易 ID 与提交节点后冻结。已冻结的交易保持不变。
func (e *Engine) freeze(tx ledger.Transaction, payer ledger.AccountID, nodes []ledger.AccountID) error {
	if tx.IsFrozen() {
		return nil
	}
	if tx.TransactionID().IsZero() {
		if err := tx.SetTransactionID(ledger.NewTransactionID(payer, e.now())); err != nil {
			return err
		}
	}
	if len(tx.NodeAccountIDs()) == 0 {
		if len(nodes) == 0 {
			nodes = e.nodes
		}
		if err := tx.SetNodeAccountIDs(nodes); err != nil {
			return err
		}
	}
	return tx.Freeze()
}

// 指标与审计日志中的执行路径。
const (
	pathDirect   = "direct"
	pathSchedule = "schedule"
	pathBytes    = "bytes"
)
