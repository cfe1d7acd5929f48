package txbuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/keys"
	"LedgerAgent-Kit/internal/ledger"
	"LedgerAgent-Kit/internal/notes"
)

// 费用类型。
const (
	FeeTypeFixed      = "fixed"
	FeeTypeFractional = "fractional"
)

// CustomFeeParams 描述代币的一条自定义费用。固定费用的 Amount 为最小单位整数。
type CustomFeeParams struct {
	Type                   string      `json:"type"`
	FeeCollectorAccountID  string      `json:"feeCollectorAccountId,omitempty"`
	Amount                 json.Number `json:"amount,omitempty"`
	DenominatingTokenID    string      `json:"denominatingTokenId,omitempty"`
	Numerator              int64       `json:"numerator,omitempty"`
	Denominator            int64       `json:"denominator,omitempty"`
	Minimum                int64       `json:"minimum,omitempty"`
	Maximum                int64       `json:"maximum,omitempty"`
	AllCollectorsAreExempt bool        `json:"allCollectorsAreExempt,omitempty"`
}

// TokenKeyParams 是代币的可选密钥字段，取值可以是公钥、私钥或 current_signer。
type TokenKeyParams struct {
	AdminKey       string `json:"adminKey,omitempty"`
	SupplyKey      string `json:"supplyKey,omitempty"`
	KycKey         string `json:"kycKey,omitempty"`
	FreezeKey      string `json:"freezeKey,omitempty"`
	WipeKey        string `json:"wipeKey,omitempty"`
	PauseKey       string `json:"pauseKey,omitempty"`
	FeeScheduleKey string `json:"feeScheduleKey,omitempty"`
	MetadataKey    string `json:"metadataKey,omitempty"`
}

// CreateFungibleTokenParams 创建同质化代币的参数。InitialSupply 与 MaxSupply 为展示单位。
type CreateFungibleTokenParams struct {
	TokenName         string      `json:"tokenName"`
	TokenSymbol       string      `json:"tokenSymbol,omitempty"`
	Decimals          *uint32     `json:"decimals,omitempty"`
	InitialSupply     json.Number `json:"initialSupply,omitempty"`
	SupplyType        string      `json:"supplyType,omitempty"`
	MaxSupply         json.Number `json:"maxSupply,omitempty"`
	TreasuryAccountID string      `json:"treasuryAccountId,omitempty"`
	IsSupplyKey       bool        `json:"isSupplyKey,omitempty"`
	TokenKeyParams
	FreezeDefault      bool              `json:"freezeDefault,omitempty"`
	AutoRenewAccountID string            `json:"autoRenewAccountId,omitempty"`
	AutoRenewPeriod    *int64            `json:"autoRenewPeriod,omitempty"`
	TokenMemo          string            `json:"tokenMemo,omitempty"`
	CustomFees         []CustomFeeParams `json:"customFees,omitempty"`
	TransactionMemo    string            `json:"transactionMemo,omitempty"`
}

// 同质化代币在 finite 供应类型下未指定上限时的默认上限（展示单位）。
const defaultFungibleMaxSupply = "1000000"

// 非同质化代币的默认最大供应量。
const defaultNFTMaxSupply = "100"

func symbolDefault(name string, target *string) fieldDefault {
	return fieldDefault{
		field: "tokenSymbol",
		note:  "未提供代币符号，由名称生成 %v",
		apply: func(context.Context) (any, bool, error) {
			if strings.TrimSpace(*target) != "" {
				return nil, false, nil
			}
			*target = DeriveSymbol(name)
			return *target, true, nil
		},
	}
}

func (b *Builder) treasuryDefault(target *string) fieldDefault {
	return b.userAccountDefault("treasuryAccountId",
		"未提供 treasuryAccountId，returnBytes 模式下使用终端用户账户 %v 作为金库账户", target)
}

func (b *Builder) feeCollectorDefaults(fees []CustomFeeParams) []fieldDefault {
	rules := make([]fieldDefault, 0, len(fees))
	for i := range fees {
		rules = append(rules, b.userAccountDefault("customFees.feeCollectorAccountId",
			"自定义费用未指定收款账户，使用终端用户账户 %v", &fees[i].FeeCollectorAccountID))
	}
	return rules
}

// CreateFungibleToken 构建同质化代币创建交易。
func (b *Builder) CreateFungibleToken(ctx context.Context, p CreateFungibleTokenParams) (*Pending, error) {
	if strings.TrimSpace(p.TokenName) == "" {
		return nil, missing("tokenName")
	}
	p.CustomFees = append([]CustomFeeParams(nil), p.CustomFees...)
	rules := []fieldDefault{
		symbolDefault(p.TokenName, &p.TokenSymbol),
		valueDefault("decimals", "", &p.Decimals, uint32(0)),
		numberDefault("initialSupply", "", &p.InitialSupply, "0"),
		{
			field: "supplyType",
			apply: func(context.Context) (any, bool, error) {
				if p.SupplyType != "" {
					return nil, false, nil
				}
				p.SupplyType = "infinite"
				return p.SupplyType, true, nil
			},
		},
		{
			field: "maxSupply",
			note:  "finite 供应类型未指定上限，默认最大供应量 %v",
			apply: func(context.Context) (any, bool, error) {
				if !strings.EqualFold(p.SupplyType, "finite") || p.MaxSupply != "" {
					return nil, false, nil
				}
				p.MaxSupply = defaultFungibleMaxSupply
				return defaultFungibleMaxSupply, true, nil
			},
		},
		b.treasuryDefault(&p.TreasuryAccountID),
		{
			field: "supplyKey",
			note:  "isSupplyKey 为真，供应密钥使用当前签名者的公钥",
			apply: func(context.Context) (any, bool, error) {
				if !p.IsSupplyKey || p.SupplyKey != "" {
					return nil, false, nil
				}
				p.SupplyKey = keys.CurrentSigner
				return p.SupplyKey, true, nil
			},
		},
		autoRenewDefault(&p.AutoRenewAccountID, &p.AutoRenewPeriod),
	}
	rules = append(rules, b.feeCollectorDefaults(p.CustomFees)...)
	n, err := applyDefaults(ctx, b.logger, rules)
	if err != nil {
		return nil, err
	}

	decimals := *p.Decimals
	initial, err := displayToInt64("initialSupply", p.InitialSupply.String(), decimals)
	if err != nil {
		return nil, err
	}
	if initial < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "初始供应量不能为负")
	}
	body := &ledger.TokenCreate{
		Name:          p.TokenName,
		Symbol:        p.TokenSymbol,
		Decimals:      decimals,
		InitialSupply: initial,
		TokenType:     ledger.TokenTypeFungible,
		SupplyType:    ledger.SupplyTypeInfinite,
		FreezeDefault: p.FreezeDefault,
		Memo:          p.TokenMemo,
	}
	if strings.EqualFold(p.SupplyType, "finite") {
		body.SupplyType = ledger.SupplyTypeFinite
		if body.MaxSupply, err = displayToInt64("maxSupply", p.MaxSupply.String(), decimals); err != nil {
			return nil, err
		}
		if body.MaxSupply < initial {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "初始供应量超过最大供应量")
		}
	} else if !strings.EqualFold(p.SupplyType, "infinite") {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的供应类型 %q", p.SupplyType)
	}
	if err := b.fillTokenCommon(ctx, body, p.TreasuryAccountID, p.TokenKeyParams, p.AutoRenewAccountID, p.AutoRenewPeriod, p.CustomFees); err != nil {
		return nil, err
	}
	return b.build(OpCreateFungibleToken, body, p.TransactionMemo, n)
}

// CreateNonFungibleTokenParams 创建非同质化代币的参数。
type CreateNonFungibleTokenParams struct {
	TokenName         string      `json:"tokenName"`
	TokenSymbol       string      `json:"tokenSymbol,omitempty"`
	MaxSupply         json.Number `json:"maxSupply,omitempty"`
	TreasuryAccountID string      `json:"treasuryAccountId,omitempty"`
	TokenKeyParams
	AutoRenewAccountID string            `json:"autoRenewAccountId,omitempty"`
	AutoRenewPeriod    *int64            `json:"autoRenewPeriod,omitempty"`
	TokenMemo          string            `json:"tokenMemo,omitempty"`
	CustomFees         []CustomFeeParams `json:"customFees,omitempty"`
	TransactionMemo    string            `json:"transactionMemo,omitempty"`
}

// CreateNonFungibleToken 构建 NFT 创建交易。未提供供应密钥时使用金库账户的当前链上密钥。
func (b *Builder) CreateNonFungibleToken(ctx context.Context, p CreateNonFungibleTokenParams) (*Pending, error) {
	if strings.TrimSpace(p.TokenName) == "" {
		return nil, missing("tokenName")
	}
	p.CustomFees = append([]CustomFeeParams(nil), p.CustomFees...)
	var supplyKey ledger.Key
	rules := []fieldDefault{
		symbolDefault(p.TokenName, &p.TokenSymbol),
		numberDefault("maxSupply", "未指定最大供应量，默认 %v", &p.MaxSupply, defaultNFTMaxSupply),
		b.treasuryDefault(&p.TreasuryAccountID),
		{
			field: "supplyKey",
			note:  "未提供供应密钥，使用金库账户 %v 的当前密钥",
			apply: func(ctx context.Context) (any, bool, error) {
				if p.SupplyKey != "" {
					return nil, false, nil
				}
				treasury, err := parseEntity("treasuryAccountId", p.TreasuryAccountID)
				if err != nil {
					return nil, false, err
				}
				if b.lookup == nil {
					return nil, false, xerrors.New(xerrors.CodeInitializationFailure, "未配置镜像节点，无法查询金库账户密钥")
				}
				key, err := b.lookup.AccountKey(ctx, treasury)
				if err != nil {
					return nil, false, xerrors.Wrap(xerrors.CodeQueryFailure, err, "查询金库账户密钥失败")
				}
				supplyKey = key
				return treasury.String(), true, nil
			},
		},
		autoRenewDefault(&p.AutoRenewAccountID, &p.AutoRenewPeriod),
	}
	rules = append(rules, b.feeCollectorDefaults(p.CustomFees)...)
	n, err := applyDefaults(ctx, b.logger, rules)
	if err != nil {
		return nil, err
	}
	maxSupply, err := displayToInt64("maxSupply", p.MaxSupply.String(), 0)
	if err != nil {
		return nil, err
	}
	if maxSupply <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "最大供应量必须为正")
	}
	body := &ledger.TokenCreate{
		Name:       p.TokenName,
		Symbol:     p.TokenSymbol,
		TokenType:  ledger.TokenTypeNonFungible,
		SupplyType: ledger.SupplyTypeFinite,
		MaxSupply:  maxSupply,
		Memo:       p.TokenMemo,
	}
	if err := b.fillTokenCommon(ctx, body, p.TreasuryAccountID, p.TokenKeyParams, p.AutoRenewAccountID, p.AutoRenewPeriod, p.CustomFees); err != nil {
		return nil, err
	}
	if supplyKey != nil {
		body.SupplyKey = ledger.K(supplyKey)
	}
	return b.build(OpCreateNonFungibleToken, body, p.TransactionMemo, n)
}

func (b *Builder) fillTokenCommon(ctx context.Context, body *ledger.TokenCreate, treasury string, k TokenKeyParams, renewAccount string, renewPeriod *int64, fees []CustomFeeParams) error {
	var err error
	if body.TreasuryAccountID, err = parseEntity("treasuryAccountId", treasury); err != nil {
		return err
	}
	fields := []struct {
		name  string
		value string
		dst   *ledger.KeyValue
	}{
		{"adminKey", k.AdminKey, &body.AdminKey},
		{"supplyKey", k.SupplyKey, &body.SupplyKey},
		{"kycKey", k.KycKey, &body.KycKey},
		{"freezeKey", k.FreezeKey, &body.FreezeKey},
		{"wipeKey", k.WipeKey, &body.WipeKey},
		{"pauseKey", k.PauseKey, &body.PauseKey},
		{"feeScheduleKey", k.FeeScheduleKey, &body.FeeScheduleKey},
		{"metadataKey", k.MetadataKey, &body.MetadataKey},
	}
	for _, f := range fields {
		if *f.dst, err = b.resolveKey(ctx, f.name, f.value); err != nil {
			return err
		}
	}
	if body.AutoRenewAccountID, body.AutoRenewPeriod, err = autoRenew(renewAccount, renewPeriod); err != nil {
		return err
	}
	body.CustomFees, err = customFees(fees)
	return err
}

func customFees(params []CustomFeeParams) ([]ledger.CustomFee, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make([]ledger.CustomFee, 0, len(params))
	for i, p := range params {
		collector, err := parseEntity("customFees.feeCollectorAccountId", p.FeeCollectorAccountID)
		if err != nil {
			return nil, err
		}
		fee := ledger.CustomFee{FeeCollectorAccountID: collector, AllCollectorsAreExempt: p.AllCollectorsAreExempt}
		switch strings.ToLower(p.Type) {
		case FeeTypeFixed, "":
			amount, err := keys.ParseInt64(p.Amount)
			if err != nil {
				return nil, invalid(fmt.Sprintf("customFees[%d].amount", i), err)
			}
			if amount <= 0 {
				return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "customFees[%d] 的固定费用必须为正", i)
			}
			fixed := &ledger.FixedFee{Amount: amount}
			if fixed.DenominatingTokenID, err = parseOptionalEntity("customFees.denominatingTokenId", p.DenominatingTokenID); err != nil {
				return nil, err
			}
			fee.Fixed = fixed
		case FeeTypeFractional:
			if p.Numerator <= 0 || p.Denominator <= 0 || p.Numerator > p.Denominator {
				return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "customFees[%d] 的比例费用无效", i)
			}
			fee.Fractional = &ledger.FractionalFee{
				Numerator: p.Numerator, Denominator: p.Denominator, Minimum: p.Minimum, Maximum: p.Maximum,
			}
		default:
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的费用类型 %q", p.Type)
		}
		out = append(out, fee)
	}
	return out, nil
}

func displayToInt64(field, display string, decimals uint32) (int64, error) {
	n, err := keys.ToBaseUnits(display, decimals)
	if err != nil {
		return 0, invalid(field, err)
	}
	if !n.IsInt64() {
		return 0, xerrors.Newf(xerrors.CodeInvalidArgument, "字段 %s 超出范围", field)
	}
	return n.Int64(), nil
}

func (b *Builder) tokenDecimals(ctx context.Context, token ledger.TokenID) (uint32, error) {
	if b.lookup == nil {
		return 0, xerrors.New(xerrors.CodeInitializationFailure, "未配置镜像节点，无法查询代币精度")
	}
	info, err := b.lookup.TokenInfo(ctx, token)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeQueryFailure, err, "查询代币信息失败")
	}
	return uint32(info.DecimalsInt()), nil
}

// MintFungibleTokenParams 增发同质化代币的参数，Amount 为展示单位。
type MintFungibleTokenParams struct {
	TokenID         string      `json:"tokenId"`
	Amount          json.Number `json:"amount"`
	TransactionMemo string      `json:"transactionMemo,omitempty"`
}

// MintFungibleToken 按代币精度换算后构建增发交易。
func (b *Builder) MintFungibleToken(ctx context.Context, p MintFungibleTokenParams) (*Pending, error) {
	token, err := parseEntity("tokenId", p.TokenID)
	if err != nil {
		return nil, err
	}
	if p.Amount == "" {
		return nil, missing("amount")
	}
	decimals, err := b.tokenDecimals(ctx, token)
	if err != nil {
		return nil, err
	}
	amount, err := displayToInt64("amount", p.Amount.String(), decimals)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "增发数量必须为正")
	}
	return b.build(OpMintFungibleToken, &ledger.TokenMint{TokenID: token, Amount: amount}, p.TransactionMemo, nil)
}

// MintNonFungibleTokenParams 铸造 NFT 的参数，每个 URI 对应一个序列号。
type MintNonFungibleTokenParams struct {
	TokenID         string   `json:"tokenId"`
	URIs            []string `json:"uris"`
	TransactionMemo string   `json:"transactionMemo,omitempty"`
}

// maxNFTMetadataPerMint 是单笔铸造的元数据条数上限。
const maxNFTMetadataPerMint = 10

// MintNonFungibleToken 构建 NFT 铸造交易。
func (b *Builder) MintNonFungibleToken(ctx context.Context, p MintNonFungibleTokenParams) (*Pending, error) {
	token, err := parseEntity("tokenId", p.TokenID)
	if err != nil {
		return nil, err
	}
	if len(p.URIs) == 0 {
		return nil, missing("uris")
	}
	if len(p.URIs) > maxNFTMetadataPerMint {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "单笔最多铸造 %d 个 NFT", maxNFTMetadataPerMint)
	}
	metadata := make([][]byte, 0, len(p.URIs))
	for _, uri := range p.URIs {
		if len(uri) == 0 || len(uri) > 100 {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "NFT 元数据长度必须在 1 到 100 字节之间: %q", uri)
		}
		metadata = append(metadata, []byte(uri))
	}
	return b.build(OpMintNonFungibleToken, &ledger.TokenMint{TokenID: token, Metadata: metadata}, p.TransactionMemo, nil)
}

// TokenAssociationParams 关联或取消关联代币的参数。
type TokenAssociationParams struct {
	AccountID       string   `json:"accountId,omitempty"`
	TokenIDs        []string `json:"tokenIds"`
	TransactionMemo string   `json:"transactionMemo,omitempty"`
}

// AssociateToken 构建代币关联交易。
func (b *Builder) AssociateToken(ctx context.Context, p TokenAssociationParams) (*Pending, error) {
	account, tokens, n, err := b.association(ctx, p)
	if err != nil {
		return nil, err
	}
	return b.build(OpAssociateToken, &ledger.TokenAssociate{AccountID: account, TokenIDs: tokens}, p.TransactionMemo, n)
}

// DissociateToken 构建取消代币关联交易。
func (b *Builder) DissociateToken(ctx context.Context, p TokenAssociationParams) (*Pending, error) {
	account, tokens, n, err := b.association(ctx, p)
	if err != nil {
		return nil, err
	}
	return b.build(OpDissociateToken, &ledger.TokenDissociate{AccountID: account, TokenIDs: tokens}, p.TransactionMemo, n)
}

func (b *Builder) association(ctx context.Context, p TokenAssociationParams) (ledger.AccountID, []ledger.TokenID, notes.Notes, error) {
	n, err := applyDefaults(ctx, b.logger, []fieldDefault{
		b.actingAccountDefault("accountId", &p.AccountID),
	})
	if err != nil {
		return ledger.AccountID{}, nil, nil, err
	}
	account, err := parseEntity("accountId", p.AccountID)
	if err != nil {
		return ledger.AccountID{}, nil, nil, err
	}
	tokens, err := parseEntities("tokenIds", p.TokenIDs)
	if err != nil {
		return ledger.AccountID{}, nil, nil, err
	}
	return account, tokens, n, nil
}

// TokenRecipient 是一条代币收款记录，Amount 为展示单位。
type TokenRecipient struct {
	AccountID string      `json:"accountId"`
	Amount    json.Number `json:"amount"`
}

// AirdropFungibleTokenParams 空投参数。
type AirdropFungibleTokenParams struct {
	TokenID         string           `json:"tokenId"`
	SourceAccountID string           `json:"sourceAccountId,omitempty"`
	Recipients      []TokenRecipient `json:"recipients"`
	TransactionMemo string           `json:"transactionMemo,omitempty"`
}

// AirdropFungibleToken 构建空投交易，付款账户扣减总额。
func (b *Builder) AirdropFungibleToken(ctx context.Context, p AirdropFungibleTokenParams) (*Pending, error) {
	n, err := applyDefaults(ctx, b.logger, []fieldDefault{
		b.actingAccountDefault("sourceAccountId", &p.SourceAccountID),
	})
	if err != nil {
		return nil, err
	}
	token, err := parseEntity("tokenId", p.TokenID)
	if err != nil {
		return nil, err
	}
	source, err := parseEntity("sourceAccountId", p.SourceAccountID)
	if err != nil {
		return nil, err
	}
	if len(p.Recipients) == 0 {
		return nil, missing("recipients")
	}
	decimals, err := b.tokenDecimals(ctx, token)
	if err != nil {
		return nil, err
	}
	body := &ledger.TokenAirdrop{}
	var total int64
	for _, r := range p.Recipients {
		to, err := parseEntity("recipients.accountId", r.AccountID)
		if err != nil {
			return nil, err
		}
		amount, err := displayToInt64("recipients.amount", r.Amount.String(), decimals)
		if err != nil {
			return nil, err
		}
		if amount <= 0 {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "空投数量必须为正，账户 %s", to)
		}
		total += amount
		d := decimals
		body.TokenTransfers = append(body.TokenTransfers, ledger.TokenTransfer{TokenID: token, AccountID: to, Amount: amount, Decimals: &d})
	}
	d := decimals
	body.TokenTransfers = append(body.TokenTransfers, ledger.TokenTransfer{TokenID: token, AccountID: source, Amount: -total, Decimals: &d})
	return b.build(OpAirdropFungibleToken, body, p.TransactionMemo, n)
}
