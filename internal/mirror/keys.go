package mirror

import (
	"encoding/hex"
	"strings"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
)

// Mirror key type tags.
const (
	KeyTypeED25519         = "ED25519"
	KeyTypeECDSA           = "ECDSA_SECP256K1"
	KeyTypeProtobufEncoded = "ProtobufEncoded"
)

// DecodeKey converts a mirror key into a ledger key.
func DecodeKey(k Key) (ledger.Key, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(k.Key, "0x"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidKeyFormat, err, "镜像节点返回的密钥不是十六进制")
	}
	var key ledger.Key
	switch k.Type {
	case KeyTypeED25519:
		key, err = ledger.PublicKeyFromED25519(raw)
	case KeyTypeECDSA:
		key, err = ledger.PublicKeyFromECDSA(raw)
	case KeyTypeProtobufEncoded:
		key, err = ledger.DecodeKey(raw)
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidKeyFormat, "未知的密钥类型 %q", k.Type)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidKeyFormat, err, "解析镜像节点密钥失败")
	}
	return key, nil
}

// IsKeyAuthorized reports whether target appears anywhere in the key
// structure. A key list matches when any member matches, regardless of its
// threshold.
func IsKeyAuthorized(k Key, target ledger.PublicKey) (bool, error) {
	key, err := DecodeKey(k)
	if err != nil {
		return false, err
	}
	return KeyContains(key, target), nil
}

// KeyContains walks key recursively looking for target.
func KeyContains(key ledger.Key, target ledger.PublicKey) bool {
	switch k := key.(type) {
	case ledger.PublicKey:
		return k.Equal(target)
	case *ledger.KeyList:
		if k == nil {
			return false
		}
		for _, member := range k.Keys {
			if KeyContains(member, target) {
				return true
			}
		}
	}
	return false
}
