package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the ledger Key, ThresholdKey and KeyList messages.
const (
	keyFieldContractID protowire.Number = 1
	keyFieldED25519    protowire.Number = 2
	keyFieldThreshold  protowire.Number = 5
	keyFieldKeyList    protowire.Number = 6
	keyFieldECDSA      protowire.Number = 7

	thresholdFieldValue protowire.Number = 1
	thresholdFieldKeys  protowire.Number = 2

	keyListFieldKeys protowire.Number = 1
)

// OpaqueKey is a key variant this package does not interpret (contract ids,
// RSA, delegatable contracts). It never matches a signer.
type OpaqueKey struct {
	Field protowire.Number
	Raw   []byte
}

func (OpaqueKey) isKey() {}

func (k OpaqueKey) String() string {
	return fmt.Sprintf("OpaqueKey{field=%d}", k.Field)
}

// EncodeKey serializes a key in the ledger's protobuf Key layout.
func EncodeKey(k Key) []byte {
	switch key := k.(type) {
	case PublicKey:
		field := keyFieldED25519
		if key.keyType == KeyTypeECDSA {
			field = keyFieldECDSA
		}
		b := protowire.AppendTag(nil, field, protowire.BytesType)
		return protowire.AppendBytes(b, key.raw)
	case *KeyList:
		list := encodeKeyList(key)
		if key.Threshold <= 0 {
			b := protowire.AppendTag(nil, keyFieldKeyList, protowire.BytesType)
			return protowire.AppendBytes(b, list)
		}
		var tk []byte
		tk = protowire.AppendTag(tk, thresholdFieldValue, protowire.VarintType)
		tk = protowire.AppendVarint(tk, uint64(key.Threshold))
		tk = protowire.AppendTag(tk, thresholdFieldKeys, protowire.BytesType)
		tk = protowire.AppendBytes(tk, list)
		b := protowire.AppendTag(nil, keyFieldThreshold, protowire.BytesType)
		return protowire.AppendBytes(b, tk)
	case OpaqueKey:
		b := protowire.AppendTag(nil, key.Field, protowire.BytesType)
		return protowire.AppendBytes(b, key.Raw)
	default:
		return nil
	}
}

func encodeKeyList(l *KeyList) []byte {
	var b []byte
	for _, member := range l.Keys {
		b = protowire.AppendTag(b, keyListFieldKeys, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeKey(member))
	}
	return b
}

// DecodeKey parses the protobuf Key layout produced by EncodeKey and by the
// mirror node's ProtobufEncoded keys.
func DecodeKey(b []byte) (Key, error) {
	if len(b) == 0 {
		return nil, errors.New("empty key encoding")
	}
	var out Key
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		value, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		var err error
		switch num {
		case keyFieldED25519:
			out, err = PublicKeyFromED25519(value)
		case keyFieldECDSA:
			out, err = PublicKeyFromECDSA(value)
		case keyFieldKeyList:
			var keys []Key
			keys, err = decodeKeyList(value)
			out = &KeyList{Keys: keys}
		case keyFieldThreshold:
			out, err = decodeThresholdKey(value)
		default:
			out = OpaqueKey{Field: num, Raw: append([]byte(nil), value...)}
		}
		if err != nil {
			return nil, err
		}
	}
	if out == nil {
		return nil, errors.New("key encoding carries no key")
	}
	return out, nil
}

func decodeThresholdKey(b []byte) (*KeyList, error) {
	list := &KeyList{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == thresholdFieldValue && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			list.Threshold = int(v)
			b = b[n:]
		case num == thresholdFieldKeys && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			keys, err := decodeKeyList(v)
			if err != nil {
				return nil, err
			}
			list.Keys = keys
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return list, nil
}

func decodeKeyList(b []byte) ([]Key, error) {
	var keys []Key
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		if num != keyListFieldKeys || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		member, err := DecodeKey(v)
		if err != nil {
			return nil, err
		}
		keys = append(keys, member)
	}
	return keys, nil
}

// KeyValue carries an optional Key through JSON as hex of its protobuf form.
type KeyValue struct {
	Key Key
}

// K wraps k for use in a transaction body.
func K(k Key) KeyValue { return KeyValue{Key: k} }

// IsSet reports whether a key is present.
func (v KeyValue) IsSet() bool { return v.Key != nil }

// MarshalJSON implements json.Marshaler.
func (v KeyValue) MarshalJSON() ([]byte, error) {
	if v.Key == nil {
		return []byte("null"), nil
	}
	return json.Marshal(hex.EncodeToString(EncodeKey(v.Key)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *KeyValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		v.Key = nil
		return nil
	}
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode key hex: %w", err)
	}
	key, err := DecodeKey(raw)
	if err != nil {
		return err
	}
	v.Key = key
	return nil
}
