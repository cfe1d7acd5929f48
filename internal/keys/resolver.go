package keys

import (
	"context"
	"log/slog"
	"strings"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/pkg/logger"
)

// CurrentSigner 是指代当前签名者公钥的占位值。
const CurrentSigner = "current_signer"

// KeyLookup 查询账户当前的链上密钥。
type KeyLookup interface {
	AccountKey(ctx context.Context, id ledger.AccountID) (ledger.Key, error)
}

// Resolver 将密钥字段的字符串值解析为公钥。
type Resolver struct {
	signer ledger.Signer
	lookup KeyLookup
	logger *slog.Logger
}

// NewResolver 创建解析器；lookup 可为空，此时 current_signer 直接使用签名者的本地公钥。
func NewResolver(signer ledger.Signer, lookup KeyLookup) *Resolver {
	return &Resolver{signer: signer, lookup: lookup, logger: logger.Named("keys")}
}

// ResolvePublicKey 解析一个密钥字段。current_signer 通过一次镜像节点查询取得签名账户
// 的当前公钥；查询失败或账户密钥为密钥列表时回退到签名者的本地公钥。
// 带私钥 DER 前缀的值会被解析为私钥并派生公钥。
func (r *Resolver) ResolvePublicKey(ctx context.Context, value string) (ledger.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == CurrentSigner {
		return r.currentSigner(ctx)
	}
	if IsPrivateKeyString(value) {
		priv, err := ParsePrivateKey(value)
		if err != nil {
			return ledger.PublicKey{}, err
		}
		return priv.PublicKey(), nil
	}
	pub, err := ParsePublicKey(value)
	if err == nil {
		return pub, nil
	}
	if priv, privErr := ParsePrivateKey(value); privErr == nil {
		return priv.PublicKey(), nil
	}
	return ledger.PublicKey{}, err
}

// ResolveOptional 与 ResolvePublicKey 相同，但空值返回 nil。
func (r *Resolver) ResolveOptional(ctx context.Context, value string) (ledger.Key, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	pub, err := r.ResolvePublicKey(ctx, value)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

func (r *Resolver) currentSigner(ctx context.Context) (ledger.PublicKey, error) {
	if r.signer == nil {
		return ledger.PublicKey{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置签名者，无法解析 current_signer")
	}
	local := r.signer.PublicKey()
	if r.lookup == nil {
		return local, nil
	}
	account := r.signer.AccountID()
	key, err := r.lookup.AccountKey(ctx, account)
	if err != nil {
		r.logger.Warn("查询签名账户密钥失败，使用本地公钥",
			slog.String("account", account.String()),
			slog.String("error", err.Error()))
		return local, nil
	}
	if pub, ok := key.(ledger.PublicKey); ok {
		return pub, nil
	}
	r.logger.Info("签名账户使用密钥列表，使用本地公钥", slog.String("account", account.String()))
	return local, nil
}
