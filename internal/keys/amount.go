package keys

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"

	xerrors "LedgerAgent-Kit/internal/errors"
)

// ParseAmount 将数值类输入转换为整数。字符串与 json.Number 按任意精度整数精确解析；
// 浮点数经 big.Float 截断转换，超出 ±2^53 的值在输入阶段已丢失精度。
func ParseAmount(v any) (*big.Int, error) {
	switch n := v.(type) {
	case nil:
		return nil, xerrors.New(xerrors.CodeMissingRequiredField, "金额为空")
	case string:
		return parseIntegerString(n)
	case json.Number:
		return parseIntegerString(n.String())
	case *big.Int:
		if n == nil {
			return nil, xerrors.New(xerrors.CodeMissingRequiredField, "金额为空")
		}
		return new(big.Int).Set(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float32:
		return parseFloat(float64(n))
	case float64:
		return parseFloat(n)
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "不支持的金额类型 %T", v)
	}
}

func parseIntegerString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, xerrors.New(xerrors.CodeMissingRequiredField, "金额为空")
	}
	out, ok := new(big.Int).SetString(strings.TrimPrefix(s, "+"), 10)
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "金额 %q 不是整数", s)
	}
	return out, nil
}

func parseFloat(f float64) (*big.Int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "金额 %v 不是有限数", f)
	}
	out, _ := big.NewFloat(f).Int(nil)
	return out, nil
}

// ParseInt64 解析金额并要求其落在 int64 范围内。
func ParseInt64(v any) (int64, error) {
	n, err := ParseAmount(v)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, xerrors.Newf(xerrors.CodeInvalidArgument, "金额 %s 超出范围", n)
	}
	return n.Int64(), nil
}

// ToBaseUnits 将展示金额（如 "12.5"）按精度转换为最小单位整数。小数位超过精度时报错。
func ToBaseUnits(display string, decimals uint32) (*big.Int, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return nil, xerrors.New(xerrors.CodeMissingRequiredField, "金额为空")
	}
	r, ok := new(big.Rat).SetString(display)
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "金额 %q 无法解析", display)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "金额 %q 的小数位超过精度 %d", display, decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}

// TinybarsPerHbar 是 1 hbar 对应的 tinybar 数。
const TinybarsPerHbar = 100_000_000

// HbarToTinybars 将 hbar 展示金额转换为 tinybar。
func HbarToTinybars(display string) (int64, error) {
	n, err := ToBaseUnits(display, 8)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, xerrors.Newf(xerrors.CodeInvalidArgument, "金额 %s 超出范围", display)
	}
	return n.Int64(), nil
}
