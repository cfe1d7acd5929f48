package ledger

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeyType names a signature scheme.
type KeyType string

const (
	KeyTypeED25519 KeyType = "ED25519"
	KeyTypeECDSA   KeyType = "ECDSA_SECP256K1"
)

// DER prefixes of the key encodings accepted by the ledger tooling.
const (
	DERPrefixED25519Private = "302e020100300506032b657004220420"
	DERPrefixED25519Public  = "302a300506032b6570032100"
	DERPrefixECDSAPrivate   = "3030020100300706052b8104000a04220420"
	DERPrefixECDSAPublic    = "302d300706052b8104000a032200"
)

// Key is either a PublicKey or a *KeyList.
type Key interface {
	isKey()
	String() string
}

// PrivateKey is a parsed ED25519 or secp256k1 secret.
type PrivateKey struct {
	keyType KeyType
	ed      ed25519.PrivateKey
	ec      *ecdsa.PrivateKey
}

// GeneratePrivateKey creates a random key of the given type.
func GeneratePrivateKey(t KeyType) (PrivateKey, error) {
	switch t {
	case KeyTypeED25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return PrivateKey{}, err
		}
		return PrivateKey{keyType: t, ed: priv}, nil
	case KeyTypeECDSA:
		priv, err := crypto.GenerateKey()
		if err != nil {
			return PrivateKey{}, err
		}
		return PrivateKey{keyType: t, ec: priv}, nil
	default:
		return PrivateKey{}, fmt.Errorf("unknown key type %q", t)
	}
}

// PrivateKeyFromED25519 accepts a 32 byte seed or a 64 byte expanded key.
func PrivateKeyFromED25519(b []byte) (PrivateKey, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return PrivateKey{keyType: KeyTypeED25519, ed: ed25519.NewKeyFromSeed(b)}, nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
		if !bytes.Equal(priv, b) {
			return PrivateKey{}, errors.New("ed25519 key does not match its seed")
		}
		return PrivateKey{keyType: KeyTypeED25519, ed: priv}, nil
	default:
		return PrivateKey{}, fmt.Errorf("ed25519 private key must be 32 or 64 bytes, got %d", len(b))
	}
}

// PrivateKeyFromECDSA accepts a 32 byte secp256k1 scalar.
func PrivateKeyFromECDSA(b []byte) (PrivateKey, error) {
	priv, err := crypto.ToECDSA(b)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("secp256k1 private key: %w", err)
	}
	return PrivateKey{keyType: KeyTypeECDSA, ec: priv}, nil
}

// Type returns the signature scheme.
func (k PrivateKey) Type() KeyType { return k.keyType }

// IsZero reports whether the key is unset.
func (k PrivateKey) IsZero() bool { return k.ed == nil && k.ec == nil }

// PublicKey derives the public half.
func (k PrivateKey) PublicKey() PublicKey {
	switch k.keyType {
	case KeyTypeED25519:
		return PublicKey{keyType: k.keyType, raw: append([]byte(nil), k.ed.Public().(ed25519.PublicKey)...)}
	case KeyTypeECDSA:
		return PublicKey{keyType: k.keyType, raw: crypto.CompressPubkey(&k.ec.PublicKey)}
	default:
		return PublicKey{}
	}
}

// Bytes returns the 32 byte secret (ED25519 seed or secp256k1 scalar).
func (k PrivateKey) Bytes() []byte {
	switch k.keyType {
	case KeyTypeED25519:
		return append([]byte(nil), k.ed.Seed()...)
	case KeyTypeECDSA:
		return crypto.FromECDSA(k.ec)
	default:
		return nil
	}
}

// StringRaw is the hex encoded secret.
func (k PrivateKey) StringRaw() string { return hex.EncodeToString(k.Bytes()) }

// StringDER is the hex encoded DER form.
func (k PrivateKey) StringDER() string {
	switch k.keyType {
	case KeyTypeED25519:
		return DERPrefixED25519Private + k.StringRaw()
	case KeyTypeECDSA:
		return DERPrefixECDSAPrivate + k.StringRaw()
	default:
		return ""
	}
}

// Sign signs message. ECDSA signs the keccak256 digest and returns r||s.
func (k PrivateKey) Sign(message []byte) ([]byte, error) {
	switch k.keyType {
	case KeyTypeED25519:
		return ed25519.Sign(k.ed, message), nil
	case KeyTypeECDSA:
		sig, err := crypto.Sign(crypto.Keccak256(message), k.ec)
		if err != nil {
			return nil, err
		}
		return sig[:64], nil
	default:
		return nil, errors.New("private key is not initialised")
	}
}

// PublicKey is an ED25519 key (32 bytes) or a compressed secp256k1 key (33 bytes).
type PublicKey struct {
	keyType KeyType
	raw     []byte
}

// PublicKeyFromED25519 wraps a raw 32 byte key.
func PublicKeyFromED25519(b []byte) (PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("ed25519 public key must be 32 bytes, got %d", len(b))
	}
	return PublicKey{keyType: KeyTypeED25519, raw: append([]byte(nil), b...)}, nil
}

// PublicKeyFromECDSA accepts the compressed (33) or uncompressed (65) form.
func PublicKeyFromECDSA(b []byte) (PublicKey, error) {
	switch len(b) {
	case 33:
		pub, err := crypto.DecompressPubkey(b)
		if err != nil {
			return PublicKey{}, fmt.Errorf("secp256k1 public key: %w", err)
		}
		return PublicKey{keyType: KeyTypeECDSA, raw: crypto.CompressPubkey(pub)}, nil
	case 65:
		pub, err := crypto.UnmarshalPubkey(b)
		if err != nil {
			return PublicKey{}, fmt.Errorf("secp256k1 public key: %w", err)
		}
		return PublicKey{keyType: KeyTypeECDSA, raw: crypto.CompressPubkey(pub)}, nil
	default:
		return PublicKey{}, fmt.Errorf("secp256k1 public key must be 33 or 65 bytes, got %d", len(b))
	}
}

func (PublicKey) isKey() {}

// Type returns the signature scheme.
func (k PublicKey) Type() KeyType { return k.keyType }

// IsZero reports whether the key is unset.
func (k PublicKey) IsZero() bool { return len(k.raw) == 0 }

// Bytes returns the raw key bytes.
func (k PublicKey) Bytes() []byte { return append([]byte(nil), k.raw...) }

// StringRaw is the hex encoded raw key, the form the mirror node reports.
func (k PublicKey) StringRaw() string { return hex.EncodeToString(k.raw) }

// StringDER is the hex encoded DER form.
func (k PublicKey) StringDER() string {
	switch k.keyType {
	case KeyTypeED25519:
		return DERPrefixED25519Public + k.StringRaw()
	case KeyTypeECDSA:
		return DERPrefixECDSAPublic + k.StringRaw()
	default:
		return ""
	}
}

func (k PublicKey) String() string { return k.StringDER() }

// Equal compares scheme and bytes.
func (k PublicKey) Equal(other PublicKey) bool {
	return k.keyType == other.keyType && bytes.Equal(k.raw, other.raw)
}

// Verify checks a signature produced by PrivateKey.Sign.
func (k PublicKey) Verify(message, sig []byte) bool {
	switch k.keyType {
	case KeyTypeED25519:
		return ed25519.Verify(ed25519.PublicKey(k.raw), message, sig)
	case KeyTypeECDSA:
		if len(sig) < 64 {
			return false
		}
		return crypto.VerifySignature(k.raw, crypto.Keccak256(message), sig[:64])
	default:
		return false
	}
}

// KeyList is a threshold key. Threshold 0 means every member must sign.
type KeyList struct {
	Threshold int
	Keys      []Key
}

// NewThresholdKey builds a list satisfied by threshold member signatures.
func NewThresholdKey(threshold int, keys ...Key) *KeyList {
	return &KeyList{Threshold: threshold, Keys: keys}
}

func (*KeyList) isKey() {}

// Add appends a member key.
func (l *KeyList) Add(k Key) {
	if k != nil {
		l.Keys = append(l.Keys, k)
	}
}

// Len returns the number of direct members.
func (l *KeyList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Keys)
}

func (l *KeyList) String() string {
	if l == nil {
		return "KeyList{}"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "KeyList{threshold=%d keys=[", l.Threshold)
	for i, k := range l.Keys {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(k.String())
	}
	b.WriteString("]}")
	return b.String()
}
