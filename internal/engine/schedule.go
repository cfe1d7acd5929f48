package engine

import (
	"context"
	"log/slog"
	"strings"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/notes"
	"LedgerAgent-Kit/internal/txbuilder"
)

// wrap 把在途交易包装为调度创建交易。管理密钥查询在提交之前顺序完成，
// 说明的顺序因此是确定的。在途交易只在全部解析成功后才被写入内层交易 ID，
// 失败时保持原样。
func (e *Engine) wrap(ctx context.Context, p *txbuilder.Pending, signer ledger.Signer, opts Options) (ledger.Transaction, notes.Notes, error) {
	var n notes.Notes
	inner := p.Transaction()

	body, err := ledger.NewScheduleCreate(inner)
	if err != nil {
		return nil, n, xerrors.Wrap(xerrors.CodeIllegalState, err, "无法创建调度交易")
	}
	body.Memo = opts.ScheduleMemo

	payer, payerNotes, err := e.schedulePayer(opts, signer)
	n = notes.Merge(n, payerNotes)
	if err != nil {
		return nil, n, err
	}
	body.PayerAccountID = &payer

	adminKey, keyNotes, err := e.scheduleAdminKey(ctx, opts, signer)
	n = notes.Merge(n, keyNotes)
	if err != nil {
		return nil, n, err
	}
	body.AdminKey = ledger.K(adminKey)

	if user, ok := e.session.UserAccountID(); ok && inner.TransactionID().IsZero() {
		id := ledger.NewTransactionID(user, e.now())
		if err := p.SetTransactionID(id); err != nil {
			return nil, n, err
		}
		id.Scheduled = true
		body.ScheduledTransactionID = &id
	}

	return ledger.NewTransaction(body), n, nil
}

// schedulePayer 选择被调度交易的付款账户：终端用户 → 显式指定 → 代理账户。
func (e *Engine) schedulePayer(opts Options, signer ledger.Signer) (ledger.AccountID, notes.Notes, error) {
	var n notes.Notes
	if user, ok := e.session.UserAccountID(); ok {
		return user, n, nil
	}
	if v := strings.TrimSpace(opts.SchedulePayerAccountID); v != "" {
		id, err := ledger.ParseEntityID(v)
		if err != nil {
			return ledger.AccountID{}, n, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "schedulePayerAccountId 无效")
		}
		return id, n, nil
	}
	agent := signer.AccountID()
	n.Addf("未指定调度付款账户，由代理账户 %s 支付调度创建费用", agent)
	return agent, n, nil
}

// scheduleAdminKey 计算调度实体的管理密钥：门限为 1 的密钥列表，包含代理公钥，
// 存在终端用户时追加其链上密钥。显式提供的 ScheduleAdminKey 替代整个列表。
func (e *Engine) scheduleAdminKey(ctx context.Context, opts Options, signer ledger.Signer) (ledger.Key, notes.Notes, error) {
	var n notes.Notes
	if strings.TrimSpace(opts.ScheduleAdminKey) != "" {
		key, err := e.resolver.ResolveOptional(ctx, opts.ScheduleAdminKey)
		if err != nil {
			return nil, n, xerrors.Wrap(xerrors.CodeInvalidKeyFormat, err, "scheduleAdminKey 不是有效的密钥")
		}
		n.Add("使用调用方提供的 scheduleAdminKey 作为调度管理密钥")
		return key, n, nil
	}

	list := ledger.NewThresholdKey(1)
	if agentKey := signer.PublicKey(); !agentKey.IsZero() {
		list.Add(agentKey)
	}
	if user, ok := e.session.UserAccountID(); ok {
		var (
			userKey ledger.Key
			err     error
		)
		if e.lookup == nil {
			err = xerrors.New(xerrors.CodeInitializationFailure, "未配置镜像节点")
		} else {
			userKey, err = e.lookup.AccountKey(ctx, user)
		}
		switch {
		case err != nil:
			e.logger.WarnContext(ctx, "查询终端用户密钥失败", slog.String("account", user.String()), slog.Any("error", err))
			n.Addf("无法获取终端用户账户 %s 的密钥，调度交易仅由代理密钥管理", user)
		case userKey != nil:
			list.Add(userKey)
		}
	}
	if list.Len() == 0 {
		n.Add("没有可用的管理密钥，调度交易不设置管理密钥")
		return nil, n, nil
	}
	return list, n, nil
}
