// Package txbuilder 校验操作参数、应用默认值策略并构建在途交易。
// 构建器不保存任何在途状态，可以在多个调用方之间共享。
package txbuilder

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/keys"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/mirror"
	"LedgerAgent-Kit/internal/notes"
	"LedgerAgent-Kit/internal/session"
	"LedgerAgent-Kit/pkg/logger"
)

// Lookup 是构建阶段需要的链上查询。
type Lookup interface {
	AccountKey(ctx context.Context, id ledger.AccountID) (ledger.Key, error)
	TokenInfo(ctx context.Context, id ledger.TokenID) (*mirror.TokenInfo, error)
}

// Builder 构建各领域的交易。
type Builder struct {
	session  *session.Context
	lookup   Lookup
	resolver *keys.Resolver
	now      func() time.Time
	logger   *slog.Logger
}

// Option 定义构建器的可选配置。
type Option func(*Builder)

// WithClock 替换时间源。
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// New 创建构建器。lookup 可为空，此时依赖链上查询的默认值策略会报错。
func New(sess *session.Context, lookup Lookup, opts ...Option) *Builder {
	b := &Builder{
		session: sess,
		lookup:  lookup,
		now:     time.Now,
		logger:  logger.Named("txbuilder"),
	}
	var keyLookup keys.KeyLookup
	if lookup != nil {
		keyLookup = lookup
	}
	b.resolver = keys.NewResolver(sess.Signer(), keyLookup)
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Session 返回构建器使用的会话上下文。
func (b *Builder) Session() *session.Context { return b.session }

// Resolver 返回密钥解析器。
func (b *Builder) Resolver() *keys.Resolver { return b.resolver }

func (b *Builder) build(op string, body ledger.Body, memo string, n notes.Notes) (*Pending, error) {
	tx := ledger.NewTransaction(body)
	if memo != "" {
		if err := tx.SetMemo(memo); err != nil {
			return nil, err
		}
	}
	return &Pending{operation: op, tx: tx, notes: n}, nil
}

func missing(field string) error {
	return xerrors.Newf(xerrors.CodeMissingRequiredField, "缺少必填字段 %s", field)
}

func invalid(field string, err error) error {
	return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "字段 "+field+" 无效")
}

// parseEntity 解析必填的实体 ID 字段。
func parseEntity(field, value string) (ledger.EntityID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ledger.EntityID{}, missing(field)
	}
	id, err := ledger.ParseEntityID(value)
	if err != nil {
		return ledger.EntityID{}, invalid(field, err)
	}
	return id, nil
}

// parseOptionalEntity 解析可选的实体 ID 字段，空值返回 nil。
func parseOptionalEntity(field, value string) (*ledger.EntityID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	id, err := parseEntity(field, value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseEntities(field string, values []string) ([]ledger.EntityID, error) {
	if len(values) == 0 {
		return nil, missing(field)
	}
	out := make([]ledger.EntityID, 0, len(values))
	for _, v := range values {
		id, err := parseEntity(field, v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// actingAccount 是操作默认代表的账户：有终端用户时为终端用户，否则为代理自身。
func (b *Builder) actingAccount() ledger.AccountID {
	if user, ok := b.session.UserAccountID(); ok {
		return user
	}
	return b.session.AgentAccountID()
}

// actingAccountDefault 在字段缺省时填入 actingAccount。
func (b *Builder) actingAccountDefault(field string, target *string) fieldDefault {
	return fieldDefault{
		field: field,
		note:  "未提供 " + field + "，使用账户 %v",
		apply: func(context.Context) (any, bool, error) {
			if strings.TrimSpace(*target) != "" {
				return nil, false, nil
			}
			acct := b.actingAccount().String()
			*target = acct
			return acct, true, nil
		},
	}
}

// userAccountDefault 仅在 returnBytes 模式且存在终端用户时为缺省字段填入终端用户账户，
// 其他情况下缺省即报 MISSING_REQUIRED_FIELD。
func (b *Builder) userAccountDefault(field, note string, target *string) fieldDefault {
	return fieldDefault{
		field: field,
		note:  note,
		apply: func(context.Context) (any, bool, error) {
			if strings.TrimSpace(*target) != "" {
				return nil, false, nil
			}
			user, ok := b.session.UserAccountID()
			if !b.session.IsReturnBytes() || !ok {
				return nil, false, missing(field)
			}
			*target = user.String()
			return *target, true, nil
		},
	}
}

// autoRenewDefault 在设置了自动续期账户但未指定周期时使用 90 天。
func autoRenewDefault(account *string, period **int64) fieldDefault {
	return fieldDefault{
		field: "autoRenewPeriod",
		note:  "设置了自动续期账户但未指定周期，默认使用 %v 秒（90 天）",
		apply: func(context.Context) (any, bool, error) {
			if strings.TrimSpace(*account) == "" || *period != nil {
				return nil, false, nil
			}
			v := DefaultAutoRenewPeriod
			*period = &v
			return v, true, nil
		},
	}
}

// valueDefault 在 *target 为 nil 时写入固定值。
func valueDefault[T any](field, note string, target **T, value T) fieldDefault {
	return fieldDefault{
		field: field,
		note:  note,
		apply: func(context.Context) (any, bool, error) {
			if *target != nil {
				return nil, false, nil
			}
			v := value
			*target = &v
			return v, true, nil
		},
	}
}

// numberDefault 在 json.Number 为空时写入固定值。
func numberDefault(field, note string, target *json.Number, value string) fieldDefault {
	return fieldDefault{
		field: field,
		note:  note,
		apply: func(context.Context) (any, bool, error) {
			if strings.TrimSpace(target.String()) != "" {
				return nil, false, nil
			}
			*target = json.Number(value)
			return value, true, nil
		},
	}
}

// resolveKey 解析可选的密钥字段。
func (b *Builder) resolveKey(ctx context.Context, field, value string) (ledger.KeyValue, error) {
	key, err := b.resolver.ResolveOptional(ctx, value)
	if err != nil {
		return ledger.KeyValue{}, xerrors.Wrap(xerrors.CodeInvalidKeyFormat, err, "字段 "+field+" 不是有效的密钥")
	}
	return ledger.K(key), nil
}

func autoRenew(account string, period *int64) (*ledger.AccountID, int64, error) {
	id, err := parseOptionalEntity("autoRenewAccountId", account)
	if err != nil {
		return nil, 0, err
	}
	if period == nil {
		return id, 0, nil
	}
	return id, *period, nil
}
