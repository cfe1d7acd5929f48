package txbuilder

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/keys"
	"LedgerAgent-Kit/internal/ledger"
)

// 合约交易的默认 gas。
const (
	defaultCreateGas  int64 = 250_000
	defaultExecuteGas int64 = 100_000
)

// CreateContractParams 部署合约的参数。Bytecode 为十六进制，ConstructorArgs 按 ABI 编码。
type CreateContractParams struct {
	Bytecode           string      `json:"bytecode"`
	ABI                string      `json:"abi,omitempty"`
	ConstructorArgs    []any       `json:"constructorArgs,omitempty"`
	Gas                *int64      `json:"gas,omitempty"`
	InitialBalance     json.Number `json:"initialBalance,omitempty"`
	AdminKey           string      `json:"adminKey,omitempty"`
	ContractMemo       string      `json:"contractMemo,omitempty"`
	AutoRenewAccountID string      `json:"autoRenewAccountId,omitempty"`
	AutoRenewPeriod    *int64      `json:"autoRenewPeriod,omitempty"`
	TransactionMemo    string      `json:"transactionMemo,omitempty"`
}

// CreateContract 构建合约部署交易。
func (b *Builder) CreateContract(ctx context.Context, p CreateContractParams) (*Pending, error) {
	n, err := applyDefaults(ctx, b.logger, []fieldDefault{
		valueDefault("gas", "未指定 gas，默认 %v", &p.Gas, defaultCreateGas),
		numberDefault("initialBalance", "", &p.InitialBalance, "0"),
		autoRenewDefault(&p.AutoRenewAccountID, &p.AutoRenewPeriod),
	})
	if err != nil {
		return nil, err
	}
	code, err := decodeHex("bytecode", p.Bytecode)
	if err != nil {
		return nil, err
	}
	body := &ledger.ContractCreate{Bytecode: code, Gas: *p.Gas, Memo: p.ContractMemo}
	if len(p.ConstructorArgs) > 0 {
		if p.ABI == "" {
			return nil, xerrors.New(xerrors.CodeMissingRequiredField, "提供构造参数时必须提供 abi")
		}
		if body.ConstructorParams, err = encodeCall(p.ABI, "", p.ConstructorArgs); err != nil {
			return nil, err
		}
	}
	if body.InitialBalance, err = keys.HbarToTinybars(p.InitialBalance.String()); err != nil {
		return nil, invalid("initialBalance", err)
	}
	if body.AdminKey, err = b.resolveKey(ctx, "adminKey", p.AdminKey); err != nil {
		return nil, err
	}
	if body.AutoRenewAccountID, body.AutoRenewPeriod, err = autoRenew(p.AutoRenewAccountID, p.AutoRenewPeriod); err != nil {
		return nil, err
	}
	return b.build(OpCreateContract, body, p.TransactionMemo, n)
}

// ExecuteContractParams 调用合约的参数。提供 ABI 与 FunctionName 时按 ABI 编码 Args，
// 否则直接使用十六进制的 FunctionParameters。Amount 单位为 hbar。
type ExecuteContractParams struct {
	ContractID         string      `json:"contractId"`
	ABI                string      `json:"abi,omitempty"`
	FunctionName       string      `json:"functionName,omitempty"`
	Args               []any       `json:"args,omitempty"`
	FunctionParameters string      `json:"functionParameters,omitempty"`
	Gas                *int64      `json:"gas,omitempty"`
	Amount             json.Number `json:"amount,omitempty"`
	TransactionMemo    string      `json:"transactionMemo,omitempty"`
}

// ExecuteContract 构建合约调用交易。
func (b *Builder) ExecuteContract(ctx context.Context, p ExecuteContractParams) (*Pending, error) {
	n, err := applyDefaults(ctx, b.logger, []fieldDefault{
		valueDefault("gas", "未指定 gas，默认 %v", &p.Gas, defaultExecuteGas),
		numberDefault("amount", "", &p.Amount, "0"),
	})
	if err != nil {
		return nil, err
	}
	contract, err := parseEntity("contractId", p.ContractID)
	if err != nil {
		return nil, err
	}
	var data []byte
	switch {
	case p.FunctionName != "":
		if p.ABI == "" {
			return nil, missing("abi")
		}
		if data, err = encodeCall(p.ABI, p.FunctionName, p.Args); err != nil {
			return nil, err
		}
	case p.FunctionParameters != "":
		if data, err = decodeHex("functionParameters", p.FunctionParameters); err != nil {
			return nil, err
		}
	default:
		return nil, missing("functionName")
	}
	amount, err := keys.HbarToTinybars(p.Amount.String())
	if err != nil {
		return nil, invalid("amount", err)
	}
	body := &ledger.ContractExecute{ContractID: contract, Gas: *p.Gas, Amount: amount, FunctionParameters: data}
	return b.build(OpExecuteContract, body, p.TransactionMemo, n)
}

func decodeHex(field, value string) ([]byte, error) {
	out, err := hexBytes(value)
	switch {
	case err != nil:
		return nil, invalid(field, err)
	case len(out) == 0:
		return nil, missing(field)
	}
	return out, nil
}

// hexBytes 解码十六进制字符串，0x 前缀可选。
func hexBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// encodeCall ABI 编码一次调用；method 为空时编码构造函数参数（不含选择器）。
func encodeCall(abiJSON, method string, args []any) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, invalid("abi", err)
	}
	var inputs abi.Arguments
	if method == "" {
		inputs = parsed.Constructor.Inputs
	} else {
		m, ok := parsed.Methods[method]
		if !ok {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "ABI 中不存在函数 %q", method)
		}
		inputs = m.Inputs
	}
	if len(args) != len(inputs) {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "参数个数不匹配：需要 %d 个，提供了 %d 个", len(inputs), len(args))
	}
	converted := make([]any, len(args))
	for i, in := range inputs {
		if converted[i], err = convertArg(in.Type, args[i]); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("参数 %s 无效", argName(in, i)))
		}
	}
	packed, err := parsed.Pack(method, converted...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "ABI 编码失败")
	}
	return packed, nil
}

func argName(in abi.Argument, i int) string {
	if in.Name != "" {
		return in.Name
	}
	return "#" + strconv.Itoa(i)
}

// convertArg 将 JSON 解码得到的值转换为 ABI 打包要求的 Go 类型。
func convertArg(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.IntTy, abi.UintTy:
		n, err := keys.ParseAmount(v)
		if err != nil {
			return nil, err
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("%s 不能为负", t)
		}
		typ := t.GetType()
		if typ.Kind() == reflect.Ptr {
			// 非 8/16/32/64 位宽的整数以 *big.Int 打包
			return n, nil
		}
		rv := reflect.New(typ).Elem()
		if t.T == abi.IntTy {
			if !n.IsInt64() || rv.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("%s 溢出: %s", t, n)
			}
			rv.SetInt(n.Int64())
		} else {
			if !n.IsUint64() || rv.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("%s 溢出: %s", t, n)
			}
			rv.SetUint(n.Uint64())
		}
		return rv.Interface(), nil
	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(b)
		}
	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case abi.AddressTy:
		if s, ok := v.(string); ok {
			return parseAddress(s)
		}
	case abi.BytesTy:
		if s, ok := v.(string); ok {
			return hexBytes(s)
		}
	case abi.FixedBytesTy:
		if s, ok := v.(string); ok {
			raw, err := hexBytes(s)
			if err != nil {
				return nil, err
			}
			if len(raw) > t.Size {
				return nil, fmt.Errorf("%s 最多 %d 字节", t, t.Size)
			}
			rv := reflect.New(t.GetType()).Elem()
			reflect.Copy(rv, reflect.ValueOf(raw))
			return rv.Interface(), nil
		}
	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]any)
		if !ok {
			break
		}
		var rv reflect.Value
		if t.T == abi.SliceTy {
			rv = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			if len(items) != t.Size {
				return nil, fmt.Errorf("%s 需要 %d 个元素", t, t.Size)
			}
			rv = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			elem, err := convertArg(*t.Elem, item)
			if err != nil {
				return nil, err
			}
			rv.Index(i).Set(reflect.ValueOf(elem))
		}
		return rv.Interface(), nil
	default:
		return nil, fmt.Errorf("不支持的 ABI 类型 %s", t)
	}
	return nil, fmt.Errorf("%s 不接受 %T", t, v)
}

// parseAddress 接受 0x 地址或 shard.realm.num 形式的实体 ID（转换为长零地址）。
func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	id, err := ledger.ParseEntityID(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("无效的地址 %q", s)
	}
	return EntityAddress(id), nil
}

// EntityAddress 返回实体的长零 EVM 地址：4 字节 shard、8 字节 realm、8 字节 num。
func EntityAddress(id ledger.EntityID) common.Address {
	var addr common.Address
	binary.BigEndian.PutUint32(addr[0:4], uint32(id.Shard))
	binary.BigEndian.PutUint64(addr[4:12], uint64(id.Realm))
	binary.BigEndian.PutUint64(addr[12:20], uint64(id.Num))
	return addr
}
