package txbuilder

import (
	"time"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/notes"
)

// Pending 是一次构建调用返回的在途交易，连同构建阶段产生的说明。
// 每次构建都返回新的值，构建器本身不保存交易。
type Pending struct {
	operation string
	tx        ledger.Transaction
	notes     notes.Notes
}

// NewPending 包装一个已有交易，供外部构建的交易进入执行引擎。
func NewPending(operation string, tx ledger.Transaction, n notes.Notes) *Pending {
	return &Pending{operation: operation, tx: tx, notes: n.Clone()}
}

// Operation 返回产生该交易的操作名。
func (p *Pending) Operation() string {
	if p == nil {
		return ""
	}
	return p.operation
}

// Transaction 返回底层交易，可能为 nil。
func (p *Pending) Transaction() ledger.Transaction {
	if p == nil {
		return nil
	}
	return p.tx
}

// Notes 返回构建阶段的说明副本。
func (p *Pending) Notes() notes.Notes {
	if p == nil {
		return nil
	}
	return p.notes.Clone()
}

// IsFrozen 判断交易是否已冻结。
func (p *Pending) IsFrozen() bool {
	return p != nil && p.tx != nil && p.tx.IsFrozen()
}

func (p *Pending) mutable() error {
	if p == nil || p.tx == nil {
		return xerrors.New(xerrors.CodeIllegalState, "当前没有可修改的交易")
	}
	if p.tx.IsFrozen() {
		return ledger.ErrFrozen
	}
	return nil
}

// SetMemo 设置交易备注。
func (p *Pending) SetMemo(memo string) error {
	if err := p.mutable(); err != nil {
		return err
	}
	return p.tx.SetMemo(memo)
}

// SetTransactionID 设置交易 ID。
func (p *Pending) SetTransactionID(id ledger.TransactionID) error {
	if err := p.mutable(); err != nil {
		return err
	}
	return p.tx.SetTransactionID(id)
}

// GenerateTransactionID 为 payer 生成交易 ID。
func (p *Pending) GenerateTransactionID(payer ledger.AccountID, now time.Time) error {
	return p.SetTransactionID(ledger.NewTransactionID(payer, now))
}

// SetNodeAccountIDs 设置提交节点。
func (p *Pending) SetNodeAccountIDs(ids []ledger.AccountID) error {
	if err := p.mutable(); err != nil {
		return err
	}
	return p.tx.SetNodeAccountIDs(ids)
}
