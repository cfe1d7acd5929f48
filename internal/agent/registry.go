package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"LedgerAgent-Kit/internal/dispatch"
	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/txbuilder"
)

// BuildFunc 将原始参数构建为一笔或多笔在途交易。
type BuildFunc func(ctx context.Context, b *txbuilder.Builder, params json.RawMessage) ([]*txbuilder.Pending, error)

// Operation 描述一个可被调用的链上操作。
type Operation struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Flags       dispatch.Flags `json:"flags"`
	Build       BuildFunc      `json:"-"`
}

// single 把返回单笔交易的构建方法适配为 BuildFunc。
func single[P any](build func(*txbuilder.Builder, context.Context, P) (*txbuilder.Pending, error)) BuildFunc {
	return func(ctx context.Context, b *txbuilder.Builder, raw json.RawMessage) ([]*txbuilder.Pending, error) {
		var params P
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		p, err := build(b, ctx, params)
		if err != nil {
			return nil, err
		}
		return []*txbuilder.Pending{p}, nil
	}
}

// multi 适配返回多笔交易的构建方法。
func multi[P any](build func(*txbuilder.Builder, context.Context, P) ([]*txbuilder.Pending, error)) BuildFunc {
	return func(ctx context.Context, b *txbuilder.Builder, raw json.RawMessage) ([]*txbuilder.Pending, error) {
		var params P
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return build(b, ctx, params)
	}
}

// decodeParams 以 json.Number 保留数值，避免金额经过浮点。
func decodeParams(raw json.RawMessage, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析操作参数失败")
	}
	return nil
}

// BuiltinOperations 返回内置的全部操作。
func BuiltinOperations() []Operation {
	return []Operation{
		{Name: txbuilder.OpCreateAccount, Description: "创建账户", Build: single((*txbuilder.Builder).CreateAccount)},
		{Name: txbuilder.OpTransferHbar, Description: "转账 HBAR", Build: single((*txbuilder.Builder).TransferHbar)},
		{
			Name:        txbuilder.OpBatchTransferHbar,
			Description: "批量转账 HBAR，超过单笔上限时拆分为多笔交易",
			Flags:       dispatch.Flags{MultiTransaction: true},
			Build:       multi((*txbuilder.Builder).BatchTransferHbar),
		},
		{Name: txbuilder.OpUpdateAccount, Description: "更新账户", Build: single((*txbuilder.Builder).UpdateAccount)},
		{Name: txbuilder.OpDeleteAccount, Description: "删除账户", Build: single((*txbuilder.Builder).DeleteAccount)},
		{Name: txbuilder.OpApproveHbarAllowance, Description: "授权 HBAR 额度", Build: single((*txbuilder.Builder).ApproveHbarAllowance)},
		{Name: txbuilder.OpCreateFungibleToken, Description: "创建同质化代币", Build: single((*txbuilder.Builder).CreateFungibleToken)},
		{Name: txbuilder.OpCreateNonFungibleToken, Description: "创建非同质化代币", Build: single((*txbuilder.Builder).CreateNonFungibleToken)},
		{Name: txbuilder.OpMintFungibleToken, Description: "增发同质化代币", Build: single((*txbuilder.Builder).MintFungibleToken)},
		{Name: txbuilder.OpMintNonFungibleToken, Description: "铸造 NFT", Build: single((*txbuilder.Builder).MintNonFungibleToken)},
		{Name: txbuilder.OpAssociateToken, Description: "关联代币", Build: single((*txbuilder.Builder).AssociateToken)},
		{Name: txbuilder.OpDissociateToken, Description: "解除代币关联", Build: single((*txbuilder.Builder).DissociateToken)},
		{Name: txbuilder.OpAirdropFungibleToken, Description: "空投同质化代币", Build: single((*txbuilder.Builder).AirdropFungibleToken)},
		{Name: txbuilder.OpCreateTopic, Description: "创建主题", Build: single((*txbuilder.Builder).CreateTopic)},
		{Name: txbuilder.OpSubmitTopicMessage, Description: "提交主题消息", Build: single((*txbuilder.Builder).SubmitTopicMessage)},
		{Name: txbuilder.OpDeleteTopic, Description: "删除主题", Build: single((*txbuilder.Builder).DeleteTopic)},
		{Name: txbuilder.OpCreateContract, Description: "部署合约", Build: single((*txbuilder.Builder).CreateContract)},
		{Name: txbuilder.OpExecuteContract, Description: "调用合约", Build: single((*txbuilder.Builder).ExecuteContract)},
		{
			Name:        txbuilder.OpSignSchedule,
			Description: "签署调度交易",
			Flags:       dispatch.Flags{NeverSchedule: true},
			Build:       single((*txbuilder.Builder).SignSchedule),
		},
		{
			Name:        txbuilder.OpDeleteSchedule,
			Description: "删除调度交易",
			Flags:       dispatch.Flags{NeverSchedule: true},
			Build:       single((*txbuilder.Builder).DeleteSchedule),
		},
	}
}

type registry map[string]Operation

func (r registry) register(op Operation) error {
	if op.Name == "" || op.Build == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "操作名称与构建函数不能为空")
	}
	r[op.Name] = op
	return nil
}

func (r registry) sorted() []Operation {
	out := make([]Operation, 0, len(r))
	for _, op := range r {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
