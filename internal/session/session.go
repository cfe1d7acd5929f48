// Package session 描述代理会话的运行上下文：签名身份、运行模式、可选的终端用户账户。
// 上下文在会话开始时创建一次，之后只读。
package session

import (
	"strings"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
)

// Mode 表示代理的运行模式。
type Mode string

const (
	// ModeAutonomous 代理自行签名并提交交易。
	ModeAutonomous Mode = "autonomous"
	// ModeReturnBytes 代理返回未签名的交易字节，由外部签名。
	ModeReturnBytes Mode = "returnBytes"
)

// ParseMode 解析配置中的模式字符串，空值视为 autonomous。
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "autonomous":
		return ModeAutonomous, nil
	case "returnbytes", "return_bytes", "return-bytes":
		return ModeReturnBytes, nil
	default:
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "未知的运行模式 %q", s)
	}
}

// Context 是代理会话上下文。
type Context struct {
	signer       ledger.Signer
	mode         Mode
	userAccount  *ledger.AccountID
	autoSchedule bool
}

// Option 定义上下文的可选配置。
type Option func(*Context)

// WithMode 设置运行模式。
func WithMode(mode Mode) Option {
	return func(c *Context) {
		c.mode = mode
	}
}

// WithUserAccount 设置终端用户账户。
func WithUserAccount(id ledger.AccountID) Option {
	return func(c *Context) {
		if id.IsZero() {
			c.userAccount = nil
			return
		}
		c.userAccount = &id
	}
}

// WithAutoScheduleInBytesMode 在 returnBytes 模式下默认创建调度交易。
func WithAutoScheduleInBytesMode(enabled bool) Option {
	return func(c *Context) {
		c.autoSchedule = enabled
	}
}

// New 创建会话上下文。签名者必填。
func New(signer ledger.Signer, opts ...Option) (*Context, error) {
	if signer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "会话缺少签名者")
	}
	c := &Context{signer: signer, mode: ModeAutonomous}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.mode != ModeAutonomous && c.mode != ModeReturnBytes {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的运行模式 %q", c.mode)
	}
	return c, nil
}

// Signer 返回当前签名身份。
func (c *Context) Signer() ledger.Signer { return c.signer }

// Mode 返回运行模式。
func (c *Context) Mode() Mode { return c.mode }

// AgentAccountID 返回代理自身的账户。
func (c *Context) AgentAccountID() ledger.AccountID { return c.signer.AccountID() }

// UserAccountID 返回终端用户账户及其是否存在。
func (c *Context) UserAccountID() (ledger.AccountID, bool) {
	if c.userAccount == nil {
		return ledger.AccountID{}, false
	}
	return *c.userAccount, true
}

// AutoScheduleInBytesMode 返回自动调度开关。
func (c *Context) AutoScheduleInBytesMode() bool { return c.autoSchedule }

// IsReturnBytes 判断是否处于 returnBytes 模式。
func (c *Context) IsReturnBytes() bool { return c.mode == ModeReturnBytes }
