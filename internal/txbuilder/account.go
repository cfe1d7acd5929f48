package txbuilder

import (
	"context"
	"encoding/json"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/keys"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/notes"
)

// CreateAccountParams 创建账户的参数。InitialBalance 单位为 hbar。
type CreateAccountParams struct {
	PublicKey                     string      `json:"publicKey,omitempty"`
	InitialBalance                json.Number `json:"initialBalance,omitempty"`
	AccountMemo                   string      `json:"accountMemo,omitempty"`
	MaxAutomaticTokenAssociations *int32      `json:"maxAutomaticTokenAssociations,omitempty"`
	TransactionMemo               string      `json:"transactionMemo,omitempty"`
}

// CreateAccount 构建创建账户交易。未提供公钥时使用终端用户账户的当前密钥，
// 没有终端用户时使用当前签名者的公钥。
func (b *Builder) CreateAccount(ctx context.Context, p CreateAccountParams) (*Pending, error) {
	var accountKey ledger.Key
	rules := []fieldDefault{
		numberDefault("initialBalance", "", &p.InitialBalance, "0"),
		valueDefault("maxAutomaticTokenAssociations", "", &p.MaxAutomaticTokenAssociations, int32(-1)),
		{
			field: "publicKey",
			note:  "未提供公钥，新账户使用%v的密钥",
			apply: func(ctx context.Context) (any, bool, error) {
				if p.PublicKey != "" {
					return nil, false, nil
				}
				if user, ok := b.session.UserAccountID(); ok && b.lookup != nil {
					key, err := b.lookup.AccountKey(ctx, user)
					if err != nil {
						return nil, false, xerrors.Wrap(xerrors.CodeQueryFailure, err, "查询终端用户密钥失败")
					}
					accountKey = key
					return "终端用户账户 " + user.String(), true, nil
				}
				p.PublicKey = keys.CurrentSigner
				return "当前签名者", true, nil
			},
		},
	}
	n, err := applyDefaults(ctx, b.logger, rules)
	if err != nil {
		return nil, err
	}
	if accountKey == nil {
		pub, err := b.resolver.ResolvePublicKey(ctx, p.PublicKey)
		if err != nil {
			return nil, err
		}
		accountKey = pub
	}
	balance, err := keys.HbarToTinybars(p.InitialBalance.String())
	if err != nil {
		return nil, invalid("initialBalance", err)
	}
	if balance < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "初始余额不能为负")
	}
	body := &ledger.CryptoCreate{
		Key:                           ledger.K(accountKey),
		InitialBalance:                balance,
		Memo:                          p.AccountMemo,
		MaxAutomaticTokenAssociations: *p.MaxAutomaticTokenAssociations,
	}
	return b.build(OpCreateAccount, body, p.TransactionMemo, n)
}

// HbarRecipient 是一条 hbar 收款记录，Amount 单位为 hbar。
type HbarRecipient struct {
	AccountID string      `json:"accountId"`
	Amount    json.Number `json:"amount"`
}

// TransferHbarParams hbar 转账参数。
type TransferHbarParams struct {
	Transfers       []HbarRecipient `json:"transfers"`
	SourceAccountID string          `json:"sourceAccountId,omitempty"`
	TransactionMemo string          `json:"transactionMemo,omitempty"`
}

// TransferHbar 构建从 SourceAccountID 向多个账户转账的交易，付款方扣减总额。
func (b *Builder) TransferHbar(ctx context.Context, p TransferHbarParams) (*Pending, error) {
	n, err := applyDefaults(ctx, b.logger, []fieldDefault{
		b.actingAccountDefault("sourceAccountId", &p.SourceAccountID),
	})
	if err != nil {
		return nil, err
	}
	body, err := hbarTransfers(p.SourceAccountID, p.Transfers)
	if err != nil {
		return nil, err
	}
	return b.build(OpTransferHbar, body, p.TransactionMemo, n)
}

func hbarTransfers(source string, recipients []HbarRecipient) (*ledger.CryptoTransfer, error) {
	if len(recipients) == 0 {
		return nil, missing("transfers")
	}
	from, err := parseEntity("sourceAccountId", source)
	if err != nil {
		return nil, err
	}
	body := &ledger.CryptoTransfer{}
	var total int64
	for _, r := range recipients {
		to, err := parseEntity("transfers.accountId", r.AccountID)
		if err != nil {
			return nil, err
		}
		amount, err := keys.HbarToTinybars(r.Amount.String())
		if err != nil {
			return nil, invalid("transfers.amount", err)
		}
		if amount <= 0 {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "转账金额必须为正，账户 %s", to)
		}
		total += amount
		body.Transfers = append(body.Transfers, ledger.HbarTransfer{AccountID: to, Amount: amount})
	}
	body.Transfers = append(body.Transfers, ledger.HbarTransfer{AccountID: from, Amount: -total})
	return body, nil
}

// BatchTransferHbar 将收款列表拆分为多笔转账交易，每笔最多
// MaxTransfersPerTransaction-1 个收款方。需要多笔交易，因此只能在 autonomous 模式执行。
func (b *Builder) BatchTransferHbar(ctx context.Context, p TransferHbarParams) ([]*Pending, error) {
	n, err := applyDefaults(ctx, b.logger, []fieldDefault{
		b.actingAccountDefault("sourceAccountId", &p.SourceAccountID),
	})
	if err != nil {
		return nil, err
	}
	if len(p.Transfers) == 0 {
		return nil, missing("transfers")
	}
	per := MaxTransfersPerTransaction - 1
	var out []*Pending
	for start := 0; start < len(p.Transfers); start += per {
		end := start + per
		if end > len(p.Transfers) {
			end = len(p.Transfers)
		}
		body, err := hbarTransfers(p.SourceAccountID, p.Transfers[start:end])
		if err != nil {
			return nil, err
		}
		batchNotes := n.Clone()
		if len(p.Transfers) > per {
			batchNotes.Addf("批量转账第 %d 批，共 %d 个收款方", len(out)+1, end-start)
		}
		pending, err := b.build(OpBatchTransferHbar, body, p.TransactionMemo, batchNotes)
		if err != nil {
			return nil, err
		}
		out = append(out, pending)
	}
	return out, nil
}

// UpdateAccountParams 更新账户的参数，nil 字段保持不变。
type UpdateAccountParams struct {
	AccountID                     string  `json:"accountId,omitempty"`
	PublicKey                     string  `json:"publicKey,omitempty"`
	AccountMemo                   *string `json:"accountMemo,omitempty"`
	MaxAutomaticTokenAssociations *int32  `json:"maxAutomaticTokenAssociations,omitempty"`
	DeclineStakingReward          *bool   `json:"declineStakingReward,omitempty"`
	TransactionMemo               string  `json:"transactionMemo,omitempty"`
}

// UpdateAccount 构建账户更新交易。
func (b *Builder) UpdateAccount(ctx context.Context, p UpdateAccountParams) (*Pending, error) {
	n, err := applyDefaults(ctx, b.logger, []fieldDefault{
		b.actingAccountDefault("accountId", &p.AccountID),
	})
	if err != nil {
		return nil, err
	}
	id, err := parseEntity("accountId", p.AccountID)
	if err != nil {
		return nil, err
	}
	key, err := b.resolveKey(ctx, "publicKey", p.PublicKey)
	if err != nil {
		return nil, err
	}
	if !key.IsSet() && p.AccountMemo == nil && p.MaxAutomaticTokenAssociations == nil && p.DeclineStakingReward == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "没有需要更新的字段")
	}
	body := &ledger.CryptoUpdate{
		AccountID:                     id,
		Key:                           key,
		Memo:                          p.AccountMemo,
		MaxAutomaticTokenAssociations: p.MaxAutomaticTokenAssociations,
		DeclineStakingReward:          p.DeclineStakingReward,
	}
	return b.build(OpUpdateAccount, body, p.TransactionMemo, n)
}

// DeleteAccountParams 删除账户的参数。
type DeleteAccountParams struct {
	AccountID         string `json:"accountId"`
	TransferAccountID string `json:"transferAccountId,omitempty"`
	TransactionMemo   string `json:"transactionMemo,omitempty"`
}

// DeleteAccount 构建删除账户交易，余额转入 TransferAccountID，缺省为代理账户。
func (b *Builder) DeleteAccount(ctx context.Context, p DeleteAccountParams) (*Pending, error) {
	id, err := parseEntity("accountId", p.AccountID)
	if err != nil {
		return nil, err
	}
	var n notes.Notes
	if p.TransferAccountID == "" {
		p.TransferAccountID = b.session.AgentAccountID().String()
		n.Addf("未提供 transferAccountId，余额转入代理账户 %s", p.TransferAccountID)
	}
	to, err := parseEntity("transferAccountId", p.TransferAccountID)
	if err != nil {
		return nil, err
	}
	if to == id {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "余额接收账户不能是被删除的账户")
	}
	return b.build(OpDeleteAccount, &ledger.CryptoDelete{AccountID: id, TransferAccountID: to}, p.TransactionMemo, n)
}

// ApproveHbarAllowanceParams hbar 授权参数，Amount 单位为 hbar。
type ApproveHbarAllowanceParams struct {
	OwnerAccountID   string      `json:"ownerAccountId,omitempty"`
	SpenderAccountID string      `json:"spenderAccountId"`
	Amount           json.Number `json:"amount"`
	TransactionMemo  string      `json:"transactionMemo,omitempty"`
}

// ApproveHbarAllowance 构建 hbar 授权交易。
func (b *Builder) ApproveHbarAllowance(ctx context.Context, p ApproveHbarAllowanceParams) (*Pending, error) {
	n, err := applyDefaults(ctx, b.logger, []fieldDefault{
		b.actingAccountDefault("ownerAccountId", &p.OwnerAccountID),
	})
	if err != nil {
		return nil, err
	}
	owner, err := parseEntity("ownerAccountId", p.OwnerAccountID)
	if err != nil {
		return nil, err
	}
	spender, err := parseEntity("spenderAccountId", p.SpenderAccountID)
	if err != nil {
		return nil, err
	}
	if p.Amount == "" {
		return nil, missing("amount")
	}
	amount, err := keys.HbarToTinybars(p.Amount.String())
	if err != nil {
		return nil, invalid("amount", err)
	}
	body := &ledger.CryptoApproveAllowance{HbarAllowances: []ledger.HbarAllowance{{
		OwnerAccountID: owner, SpenderAccountID: spender, Amount: amount,
	}}}
	return b.build(OpApproveHbarAllowance, body, p.TransactionMemo, n)
}
