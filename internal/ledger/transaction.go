package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	xerrors "LedgerAgent-Kit/internal/errors"
)

// Transaction is the in-flight transaction contract the builders and the
// execution engine depend on. Once frozen, every mutator except
// AddSignature fails with an ILLEGAL_STATE error.
type Transaction interface {
	Kind() Kind
	Body() Body
	SetBody(Body) error
	Memo() string
	SetMemo(memo string) error
	TransactionID() TransactionID
	SetTransactionID(id TransactionID) error
	NodeAccountIDs() []AccountID
	SetNodeAccountIDs(ids []AccountID) error
	IsFrozen() bool
	Freeze() error
	BodyBytes() ([]byte, error)
	AddSignature(key PublicKey, sig []byte) error
	Signatures() []Signature
	ToBytes() ([]byte, error)
}

// Signature pairs a signer's public key with its signature over BodyBytes.
type Signature struct {
	PublicKey PublicKey
	Bytes     []byte
}

// ErrFrozen is returned by mutators on a frozen transaction.
var ErrFrozen = xerrors.New(xerrors.CodeIllegalState, "transaction is frozen")

// Envelope is the reference Transaction implementation. Its serialized form
// is RLP over the JSON-encoded body.
type Envelope struct {
	body       Body
	memo       string
	txID       TransactionID
	nodes      []AccountID
	frozen     bool
	signatures []Signature
}

// NewTransaction wraps body in an unfrozen envelope.
func NewTransaction(body Body) *Envelope {
	return &Envelope{body: body}
}

var _ Transaction = (*Envelope)(nil)

func (e *Envelope) Kind() Kind {
	if e.body == nil {
		return ""
	}
	return e.body.Kind()
}

func (e *Envelope) Body() Body { return e.body }

func (e *Envelope) SetBody(body Body) error {
	if e.frozen {
		return ErrFrozen
	}
	e.body = body
	return nil
}

func (e *Envelope) Memo() string { return e.memo }

func (e *Envelope) SetMemo(memo string) error {
	if e.frozen {
		return ErrFrozen
	}
	if len(memo) > 100 {
		return xerrors.New(xerrors.CodeInvalidArgument, "memo exceeds 100 bytes")
	}
	e.memo = memo
	return nil
}

func (e *Envelope) TransactionID() TransactionID { return e.txID }

func (e *Envelope) SetTransactionID(id TransactionID) error {
	if e.frozen {
		return ErrFrozen
	}
	e.txID = id
	return nil
}

func (e *Envelope) NodeAccountIDs() []AccountID {
	return append([]AccountID(nil), e.nodes...)
}

func (e *Envelope) SetNodeAccountIDs(ids []AccountID) error {
	if e.frozen {
		return ErrFrozen
	}
	e.nodes = append([]AccountID(nil), ids...)
	return nil
}

func (e *Envelope) IsFrozen() bool { return e.frozen }

// Freeze fixes the body; a transaction id and at least one node are required.
func (e *Envelope) Freeze() error {
	if e.frozen {
		return nil
	}
	if e.body == nil {
		return xerrors.New(xerrors.CodeIllegalState, "transaction has no body")
	}
	if e.txID.IsZero() {
		return xerrors.New(xerrors.CodeIllegalState, "transaction id must be set before freezing")
	}
	if len(e.nodes) == 0 {
		return xerrors.New(xerrors.CodeIllegalState, "node account ids must be set before freezing")
	}
	e.frozen = true
	return nil
}

type signedPart struct {
	Kind  string
	Body  []byte
	Memo  string
	TxID  string
	Nodes []string
}

type rlpSignature struct {
	KeyType string
	Key     []byte
	Sig     []byte
}

type rlpEnvelope struct {
	Signed     signedPart
	Frozen     bool
	Signatures []rlpSignature
}

func (e *Envelope) signedPart() (signedPart, error) {
	if e.body == nil {
		return signedPart{}, xerrors.New(xerrors.CodeIllegalState, "transaction has no body")
	}
	data, err := json.Marshal(e.body)
	if err != nil {
		return signedPart{}, fmt.Errorf("encode %s body: %w", e.body.Kind(), err)
	}
	nodes := make([]string, len(e.nodes))
	for i, n := range e.nodes {
		nodes[i] = n.String()
	}
	return signedPart{
		Kind:  string(e.body.Kind()),
		Body:  data,
		Memo:  e.memo,
		TxID:  e.txID.String(),
		Nodes: nodes,
	}, nil
}

// BodyBytes returns the bytes signatures are computed over.
func (e *Envelope) BodyBytes() ([]byte, error) {
	part, err := e.signedPart()
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(part)
}

// AddSignature attaches a signature; only frozen transactions can be signed.
func (e *Envelope) AddSignature(key PublicKey, sig []byte) error {
	if !e.frozen {
		return xerrors.New(xerrors.CodeIllegalState, "transaction must be frozen before signing")
	}
	for i, existing := range e.signatures {
		if existing.PublicKey.Equal(key) {
			e.signatures[i].Bytes = append([]byte(nil), sig...)
			return nil
		}
	}
	e.signatures = append(e.signatures, Signature{PublicKey: key, Bytes: append([]byte(nil), sig...)})
	return nil
}

func (e *Envelope) Signatures() []Signature {
	return append([]Signature(nil), e.signatures...)
}

// ToBytes serializes the envelope, signatures included.
func (e *Envelope) ToBytes() ([]byte, error) {
	part, err := e.signedPart()
	if err != nil {
		return nil, err
	}
	sigs := make([]rlpSignature, len(e.signatures))
	for i, s := range e.signatures {
		sigs[i] = rlpSignature{KeyType: string(s.PublicKey.Type()), Key: s.PublicKey.Bytes(), Sig: s.Bytes}
	}
	return rlp.EncodeToBytes(rlpEnvelope{Signed: part, Frozen: e.frozen, Signatures: sigs})
}

// TransactionFromBytes decodes the output of Envelope.ToBytes.
func TransactionFromBytes(data []byte) (*Envelope, error) {
	var raw rlpEnvelope
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, fmt.Errorf("decode transaction envelope: %w", err)
	}
	body, err := DecodeBody(Kind(raw.Signed.Kind), raw.Signed.Body)
	if err != nil {
		return nil, err
	}
	env := &Envelope{body: body, memo: raw.Signed.Memo, frozen: raw.Frozen}
	if raw.Signed.TxID != "" {
		if env.txID, err = ParseTransactionID(raw.Signed.TxID); err != nil {
			return nil, err
		}
	}
	for _, n := range raw.Signed.Nodes {
		id, err := ParseEntityID(n)
		if err != nil {
			return nil, err
		}
		env.nodes = append(env.nodes, id)
	}
	for _, s := range raw.Signatures {
		var key PublicKey
		switch KeyType(s.KeyType) {
		case KeyTypeED25519:
			key, err = PublicKeyFromED25519(s.Key)
		case KeyTypeECDSA:
			key, err = PublicKeyFromECDSA(s.Key)
		default:
			err = fmt.Errorf("unknown signature key type %q", s.KeyType)
		}
		if err != nil {
			return nil, err
		}
		env.signatures = append(env.signatures, Signature{PublicKey: key, Bytes: s.Sig})
	}
	return env, nil
}
