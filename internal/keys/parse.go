// Package keys 将字符串形式的密钥材料与金额解析为具体类型。
package keys

import (
	"encoding/hex"
	"strings"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
)

// ParsePrivateKey 按结构特征识别签名方案并解析私钥：0x 前缀与 secp256k1 的 DER
// 前缀视为 ECDSA，ED25519 的 DER 前缀视为 ED25519，其余按十六进制长度判断
// （96 为 ED25519 DER，100 为 ECDSA DER），无法判断时先尝试 ED25519。
// 识别出的方案解析失败时改用另一方案重试。
func ParsePrivateKey(s string) (ledger.PrivateKey, error) {
	raw := normalizeHex(s)
	if raw == "" {
		return ledger.PrivateKey{}, xerrors.New(xerrors.CodeInvalidKeyFormat, "私钥为空")
	}
	primary := detectPrivate(s, raw)
	key, err := parsePrivateAs(primary, raw)
	if err == nil {
		return key, nil
	}
	if key, altErr := parsePrivateAs(alternate(primary), raw); altErr == nil {
		return key, nil
	}
	return ledger.PrivateKey{}, xerrors.Wrap(xerrors.CodeInvalidKeyFormat, err, "无法解析私钥")
}

// ParsePublicKey 以相同规则解析公钥：DER 前缀优先，其次十六进制长度
// （64 为 ED25519，66 或 130 为 ECDSA）。
func ParsePublicKey(s string) (ledger.PublicKey, error) {
	raw := normalizeHex(s)
	if raw == "" {
		return ledger.PublicKey{}, xerrors.New(xerrors.CodeInvalidKeyFormat, "公钥为空")
	}
	primary := detectPublic(s, raw)
	key, err := parsePublicAs(primary, raw)
	if err == nil {
		return key, nil
	}
	if key, altErr := parsePublicAs(alternate(primary), raw); altErr == nil {
		return key, nil
	}
	return ledger.PublicKey{}, xerrors.Wrap(xerrors.CodeInvalidKeyFormat, err, "无法解析公钥")
}

func normalizeHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "0x")
}

func hasHexPrefix(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "0x")
}

func alternate(t ledger.KeyType) ledger.KeyType {
	if t == ledger.KeyTypeED25519 {
		return ledger.KeyTypeECDSA
	}
	return ledger.KeyTypeED25519
}

func detectPrivate(original, raw string) ledger.KeyType {
	switch {
	case hasHexPrefix(original):
		return ledger.KeyTypeECDSA
	case strings.HasPrefix(raw, ledger.DERPrefixED25519Private):
		return ledger.KeyTypeED25519
	case strings.HasPrefix(raw, ledger.DERPrefixECDSAPrivate):
		return ledger.KeyTypeECDSA
	case len(raw) == 96:
		return ledger.KeyTypeED25519
	case len(raw) == 100:
		return ledger.KeyTypeECDSA
	default:
		return ledger.KeyTypeED25519
	}
}

func detectPublic(original, raw string) ledger.KeyType {
	switch {
	case hasHexPrefix(original):
		return ledger.KeyTypeECDSA
	case strings.HasPrefix(raw, ledger.DERPrefixED25519Public):
		return ledger.KeyTypeED25519
	case strings.HasPrefix(raw, ledger.DERPrefixECDSAPublic):
		return ledger.KeyTypeECDSA
	case len(raw) == 66 || len(raw) == 130:
		return ledger.KeyTypeECDSA
	default:
		return ledger.KeyTypeED25519
	}
}

func parsePrivateAs(t ledger.KeyType, raw string) (ledger.PrivateKey, error) {
	if t == ledger.KeyTypeED25519 {
		b, err := hex.DecodeString(strings.TrimPrefix(raw, ledger.DERPrefixED25519Private))
		if err != nil {
			return ledger.PrivateKey{}, err
		}
		return ledger.PrivateKeyFromED25519(b)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(raw, ledger.DERPrefixECDSAPrivate))
	if err != nil {
		return ledger.PrivateKey{}, err
	}
	return ledger.PrivateKeyFromECDSA(b)
}

func parsePublicAs(t ledger.KeyType, raw string) (ledger.PublicKey, error) {
	if t == ledger.KeyTypeED25519 {
		b, err := hex.DecodeString(strings.TrimPrefix(raw, ledger.DERPrefixED25519Public))
		if err != nil {
			return ledger.PublicKey{}, err
		}
		return ledger.PublicKeyFromED25519(b)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(raw, ledger.DERPrefixECDSAPublic))
	if err != nil {
		return ledger.PublicKey{}, err
	}
	return ledger.PublicKeyFromECDSA(b)
}

// IsPrivateKeyString 判断字符串是否带有私钥的 DER 前缀。
func IsPrivateKeyString(s string) bool {
	raw := normalizeHex(s)
	return strings.HasPrefix(raw, ledger.DERPrefixED25519Private) || strings.HasPrefix(raw, ledger.DERPrefixECDSAPrivate)
}
