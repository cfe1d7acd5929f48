package ledger

import (
	"context"
	"errors"
	"fmt"

	xerrors "LedgerAgent-Kit/internal/errors"
)

// Status is a receipt status code.
type Status string

const (
	StatusSuccess          Status = "SUCCESS"
	StatusInvalidSignature Status = "INVALID_SIGNATURE"
	StatusInsufficientFee  Status = "INSUFFICIENT_PAYER_BALANCE"
	StatusInvalidAccount   Status = "INVALID_ACCOUNT_ID"
	StatusInvalidBody      Status = "INVALID_TRANSACTION_BODY"
	StatusDuplicate        Status = "DUPLICATE_TRANSACTION"
)

// Receipt is the consensus outcome of a transaction.
type Receipt struct {
	Status                 Status         `json:"status"`
	AccountID              *AccountID     `json:"account_id,omitempty"`
	TokenID                *TokenID       `json:"token_id,omitempty"`
	TopicID                *TopicID       `json:"topic_id,omitempty"`
	ContractID             *ContractID    `json:"contract_id,omitempty"`
	ScheduleID             *ScheduleID    `json:"schedule_id,omitempty"`
	ScheduledTransactionID *TransactionID `json:"scheduled_transaction_id,omitempty"`
	SerialNumbers          []int64        `json:"serial_numbers,omitempty"`
	TopicSequenceNumber    uint64         `json:"topic_sequence_number,omitempty"`
}

// ReceiptStatusError reports a receipt whose status is not SUCCESS.
type ReceiptStatusError struct {
	TransactionID TransactionID
	Status        Status
}

func (e *ReceiptStatusError) Error() string {
	return fmt.Sprintf("transaction %s failed with status %s", e.TransactionID, e.Status)
}

// Response is returned by Signer.Execute.
type Response interface {
	TransactionID() TransactionID
	Receipt(ctx context.Context) (Receipt, error)
}

// Signer is the identity that signs and submits transactions.
type Signer interface {
	AccountID() AccountID
	PublicKey() PublicKey
	NodeAccountIDs() []AccountID
	Sign(tx Transaction) error
	Execute(ctx context.Context, tx Transaction) (Response, error)
}

// Submitter delivers signed transaction bytes to a network.
type Submitter interface {
	Nodes() []AccountID
	Submit(ctx context.Context, raw []byte) (Receipt, error)
}

// LocalSigner signs with an in-process private key and submits through a
// Submitter.
type LocalSigner struct {
	account   AccountID
	key       PrivateKey
	submitter Submitter
}

// NewLocalSigner builds a signer for account.
func NewLocalSigner(account AccountID, key PrivateKey, submitter Submitter) *LocalSigner {
	return &LocalSigner{account: account, key: key, submitter: submitter}
}

var _ Signer = (*LocalSigner)(nil)

func (s *LocalSigner) AccountID() AccountID { return s.account }

func (s *LocalSigner) PublicKey() PublicKey { return s.key.PublicKey() }

func (s *LocalSigner) NodeAccountIDs() []AccountID {
	if s.submitter == nil {
		return nil
	}
	return s.submitter.Nodes()
}

// Sign adds this signer's signature to a frozen transaction.
func (s *LocalSigner) Sign(tx Transaction) error {
	if tx == nil {
		return errors.New("nothing to sign")
	}
	if s.key.IsZero() {
		return xerrors.New(xerrors.CodeInitializationFailure, "signer has no private key")
	}
	msg, err := tx.BodyBytes()
	if err != nil {
		return err
	}
	sig, err := s.key.Sign(msg)
	if err != nil {
		return err
	}
	return tx.AddSignature(s.key.PublicKey(), sig)
}

// Execute signs when unsigned by this key and submits.
func (s *LocalSigner) Execute(ctx context.Context, tx Transaction) (Response, error) {
	if s.submitter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "signer has no network configured")
	}
	if !signedBy(tx, s.key.PublicKey()) {
		if err := s.Sign(tx); err != nil {
			return nil, err
		}
	}
	raw, err := tx.ToBytes()
	if err != nil {
		return nil, err
	}
	receipt, err := s.submitter.Submit(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &localResponse{txID: tx.TransactionID(), receipt: receipt}, nil
}

func signedBy(tx Transaction, key PublicKey) bool {
	for _, sig := range tx.Signatures() {
		if sig.PublicKey.Equal(key) {
			return true
		}
	}
	return false
}

type localResponse struct {
	txID    TransactionID
	receipt Receipt
}

func (r *localResponse) TransactionID() TransactionID { return r.txID }

func (r *localResponse) Receipt(ctx context.Context) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if r.receipt.Status != StatusSuccess {
		return r.receipt, &ReceiptStatusError{TransactionID: r.txID, Status: r.receipt.Status}
	}
	return r.receipt, nil
}
