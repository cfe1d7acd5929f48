package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/engine"
	"LedgerAgent-Kit/internal/session"
	"LedgerAgent-Kit/internal/txbuilder"
	"LedgerAgent-Kit/pkg/logger"
)

// ScheduleOperation 是创建调度交易时响应中的固定操作标识。
const ScheduleOperation = "schedule_create"

// Flags 是操作的能力标记。
type Flags struct {
	NeverSchedule    bool
	MultiTransaction bool
}

// Call 是单次调用的调度参数。
type Call struct {
	Schedule               *bool  `json:"schedule,omitempty"`
	ScheduleMemo           string `json:"scheduleMemo,omitempty"`
	SchedulePayerAccountID string `json:"schedulePayerAccountId,omitempty"`
	ScheduleAdminKey       string `json:"scheduleAdminKey,omitempty"`
}

// ScheduleResponse 是 returnBytes 模式下创建调度交易的响应。
type ScheduleResponse struct {
	Success        bool     `json:"success"`
	Operation      string   `json:"operation"`
	ScheduleID     string   `json:"scheduleId,omitempty"`
	Description    string   `json:"description"`
	PayerAccountID string   `json:"payerAccountId,omitempty"`
	TransactionID  string   `json:"transactionId,omitempty"`
	Error          string   `json:"error,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

// Response 是一次分发的结果，Outcome 决定哪个字段有值。
type Response struct {
	Outcome  Outcome             `json:"outcome"`
	Results  []engine.Result     `json:"results,omitempty"`
	Bytes    *engine.BytesResult `json:"bytes,omitempty"`
	Schedule *ScheduleResponse   `json:"schedule,omitempty"`
}

// Success 汇总各路径的成功标记。
func (r Response) Success() bool {
	switch r.Outcome {
	case OutcomeExecute:
		if len(r.Results) == 0 {
			return false
		}
		for _, res := range r.Results {
			if !res.Success {
				return false
			}
		}
		return true
	case OutcomeSchedule:
		return r.Schedule != nil && r.Schedule.Success
	case OutcomeReturnBytes:
		return r.Bytes != nil
	}
	return false
}

// Dispatcher 按 Decide 的结果驱动执行引擎。
type Dispatcher struct {
	session *session.Context
	engine  *engine.Engine
	logger  *slog.Logger
}

// New 创建分发器。
func New(sess *session.Context, eng *engine.Engine) *Dispatcher {
	return &Dispatcher{session: sess, engine: eng, logger: logger.Named("dispatch")}
}

// Outcome 以会话状态和调用参数求出处理结果，不构建也不提交任何交易。
// 调用方可以在构建交易之前用它提前拒绝不支持的组合。
func (d *Dispatcher) Outcome(flags Flags, call Call) (Outcome, error) {
	return Decide(Inputs{
		Mode:             d.session.Mode(),
		NeverSchedule:    flags.NeverSchedule,
		MultiTransaction: flags.MultiTransaction,
		Override:         call.Schedule,
		AutoSchedule:     d.session.AutoScheduleInBytesMode(),
	})
}

// Dispatch 执行 op 构建出的交易。只有 autonomous 模式接受多笔交易，按顺序提交，
// 遇到第一笔失败即停止。
func (d *Dispatcher) Dispatch(ctx context.Context, op string, flags Flags, pendings []*txbuilder.Pending, call Call) (Response, error) {
	outcome, err := d.Outcome(flags, call)
	if err != nil {
		return Response{}, err
	}
	d.logger.DebugContext(ctx, "分发操作", slog.String("operation", op), slog.String("outcome", outcome.String()), slog.Int("transactions", len(pendings)))

	if outcome != OutcomeExecute && len(pendings) != 1 {
		return Response{}, xerrors.Newf(xerrors.CodeIllegalState, "%s 需要恰好一笔交易，实际 %d 笔", outcome, len(pendings))
	}

	resp := Response{Outcome: outcome}
	switch outcome {
	case OutcomeExecute:
		if len(pendings) == 0 {
			resp.Results = append(resp.Results, d.engine.Execute(ctx, nil, engine.Options{}))
			return resp, nil
		}
		for i, p := range pendings {
			if i == 0 && call.Schedule != nil && *call.Schedule {
				p = withNote(p, "autonomous 模式下忽略调度请求，交易立即执行")
			}
			res := d.engine.Execute(ctx, p, engine.Options{})
			resp.Results = append(resp.Results, res)
			if !res.Success {
				break
			}
		}
	case OutcomeReturnBytes:
		out, err := d.engine.TransactionBytes(ctx, pendings[0], engine.Options{})
		if err != nil {
			return Response{}, err
		}
		resp.Bytes = &out
	case OutcomeSchedule:
		res := d.engine.Execute(ctx, pendings[0], engine.Options{
			Schedule:               true,
			ScheduleMemo:           call.ScheduleMemo,
			SchedulePayerAccountID: call.SchedulePayerAccountID,
			ScheduleAdminKey:       call.ScheduleAdminKey,
		})
		resp.Schedule = &ScheduleResponse{
			Success:        res.Success,
			Operation:      ScheduleOperation,
			ScheduleID:     res.ScheduleID,
			Description:    Describe(op, call.ScheduleMemo),
			PayerAccountID: res.SchedulePayerAccountID,
			TransactionID:  res.TransactionID,
			Error:          res.Error,
			Notes:          res.Notes,
		}
	}
	return resp, nil
}

// Describe 返回调度交易的描述：调用方备注优先，否则按操作名生成。
func Describe(op, memo string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Scheduled %s transaction", op)
}

func withNote(p *txbuilder.Pending, note string) *txbuilder.Pending {
	n := p.Notes()
	n.Add(note)
	return txbuilder.NewPending(p.Operation(), p.Transaction(), n)
}
