// Package dispatch 根据运行模式、调用参数与操作能力决定交易的去向：
// 立即执行、创建调度交易或返回未签名字节。
package dispatch

import (
	"fmt"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/session"
)

// Outcome 是一次调用的处理结果类型。
type Outcome int

const (
	OutcomeExecute Outcome = iota + 1
	OutcomeSchedule
	OutcomeReturnBytes
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecute:
		return "execute"
	case OutcomeSchedule:
		return "schedule"
	case OutcomeReturnBytes:
		return "return_bytes"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// MarshalText 以字符串形式序列化。
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Inputs 是决策依据的全部输入。NeverSchedule 标记本身不可被调度的操作（例如签署或
// 删除调度），MultiTransaction 标记需要提交多笔交易的操作，Override 是调用方的显式
// 调度请求，nil 表示未指定。
type Inputs struct {
	Mode             session.Mode
	NeverSchedule    bool
	MultiTransaction bool
	Override         *bool
	AutoSchedule     bool
}

// CodeMultiTransactionUnsupported 表示多交易操作在 returnBytes 模式下被拒绝。
const CodeMultiTransactionUnsupported xerrors.Code = "MULTI_TRANSACTION_UNSUPPORTED"

// ErrMultiTransactionBytes 表示多交易操作不能在 returnBytes 模式下执行。
var ErrMultiTransactionBytes = xerrors.New(CodeMultiTransactionUnsupported,
	"该操作需要提交多笔交易，returnBytes 模式不支持，请切换到 autonomous 模式后重试")

func init() {
	xerrors.Register(CodeMultiTransactionUnsupported, xerrors.Attributes{
		Message:  "multi-transaction operation requires autonomous mode",
		Severity: xerrors.SeverityInfo,
	})
}

// Decide 是纯函数：autonomous 模式总是立即执行；returnBytes 模式下多交易操作报错，
// 不可调度的操作返回字节，否则由调用方显式请求决定，未指定时取自动调度开关。
func Decide(in Inputs) (Outcome, error) {
	switch in.Mode {
	case session.ModeAutonomous:
		return OutcomeExecute, nil
	case session.ModeReturnBytes:
	default:
		return 0, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的运行模式 %q", in.Mode)
	}
	if in.MultiTransaction {
		return 0, ErrMultiTransactionBytes
	}
	if in.NeverSchedule {
		return OutcomeReturnBytes, nil
	}
	schedule := in.AutoSchedule
	if in.Override != nil {
		schedule = *in.Override
	}
	if schedule {
		return OutcomeSchedule, nil
	}
	return OutcomeReturnBytes, nil
}
