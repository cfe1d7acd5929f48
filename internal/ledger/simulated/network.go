// Package simulated provides an in-process ledger that accepts envelopes
// produced by the ledger package. It verifies signatures, allocates entity
// ids and returns receipts, which is enough to exercise the execution engine
// without a live network.
package simulated

import (
	"context"
	"errors"
	"sync"
	"time"

	"LedgerAgent-Kit/internal/ledger"
)

// Network is a deterministic single-process ledger.
type Network struct {
	mu        sync.Mutex
	nodes     []ledger.AccountID
	nextNum   int64
	accounts  map[ledger.AccountID]ledger.Key
	seen      map[string]struct{}
	serials   map[ledger.TokenID]int64
	sequences map[ledger.TopicID]uint64
	submitted []*ledger.Envelope
	failNext  []error
	latency   time.Duration
}

// Option configures a Network.
type Option func(*Network)

// WithNodes overrides the node account ids.
func WithNodes(nodes ...ledger.AccountID) Option {
	return func(n *Network) {
		n.nodes = append([]ledger.AccountID(nil), nodes...)
	}
}

// WithFirstEntityNum sets the first allocated entity number.
func WithFirstEntityNum(num int64) Option {
	return func(n *Network) {
		n.nextNum = num
	}
}

// WithLatency delays every submission.
func WithLatency(d time.Duration) Option {
	return func(n *Network) {
		n.latency = d
	}
}

// New creates an empty network.
func New(opts ...Option) *Network {
	n := &Network{
		nodes:     []ledger.AccountID{{Num: 3}, {Num: 4}, {Num: 5}},
		nextNum:   1001,
		accounts:  make(map[ledger.AccountID]ledger.Key),
		seen:      make(map[string]struct{}),
		serials:   make(map[ledger.TokenID]int64),
		sequences: make(map[ledger.TopicID]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Nodes implements ledger.Submitter.
func (n *Network) Nodes() []ledger.AccountID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ledger.AccountID(nil), n.nodes...)
}

// RegisterAccount makes account known with key; its transactions must then
// satisfy key.
func (n *Network) RegisterAccount(account ledger.AccountID, key ledger.Key) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts[account] = key
}

// AccountKey returns the registered key of account.
func (n *Network) AccountKey(account ledger.AccountID) (ledger.Key, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key, ok := n.accounts[account]
	return key, ok
}

// FailNext makes the next submission return err instead of a receipt.
func (n *Network) FailNext(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failNext = append(n.failNext, err)
}

// Submitted returns every accepted or rejected envelope in arrival order.
func (n *Network) Submitted() []*ledger.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*ledger.Envelope(nil), n.submitted...)
}

// Submit implements ledger.Submitter.
func (n *Network) Submit(ctx context.Context, raw []byte) (ledger.Receipt, error) {
	if n.latency > 0 {
		select {
		case <-ctx.Done():
			return ledger.Receipt{}, ctx.Err()
		case <-time.After(n.latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return ledger.Receipt{}, err
	}

	tx, err := ledger.TransactionFromBytes(raw)
	if err != nil {
		return ledger.Receipt{Status: ledger.StatusInvalidBody}, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.submitted = append(n.submitted, tx)
	if len(n.failNext) > 0 {
		failure := n.failNext[0]
		n.failNext = n.failNext[1:]
		return ledger.Receipt{}, failure
	}

	if !tx.IsFrozen() || tx.TransactionID().IsZero() {
		return ledger.Receipt{Status: ledger.StatusInvalidBody}, nil
	}
	id := tx.TransactionID().String()
	if _, dup := n.seen[id]; dup {
		return ledger.Receipt{Status: ledger.StatusDuplicate}, nil
	}

	signers, ok := verifySignatures(tx)
	if !ok {
		return ledger.Receipt{Status: ledger.StatusInvalidSignature}, nil
	}
	if payerKey, known := n.accounts[tx.TransactionID().AccountID]; known && !Satisfies(payerKey, signers) {
		return ledger.Receipt{Status: ledger.StatusInvalidSignature}, nil
	}
	n.seen[id] = struct{}{}
	return n.apply(tx)
}

func (n *Network) allocate() ledger.EntityID {
	id := ledger.EntityID{Num: n.nextNum}
	n.nextNum++
	return id
}

func (n *Network) apply(tx *ledger.Envelope) (ledger.Receipt, error) {
	receipt := ledger.Receipt{Status: ledger.StatusSuccess}
	switch body := tx.Body().(type) {
	case *ledger.CryptoCreate:
		id := n.allocate()
		if body.Key.IsSet() {
			n.accounts[id] = body.Key.Key
		}
		receipt.AccountID = &id
	case *ledger.CryptoTransfer:
		var sum int64
		for _, t := range body.Transfers {
			sum += t.Amount
		}
		if sum != 0 {
			receipt.Status = ledger.StatusInvalidBody
		}
	case *ledger.TokenCreate:
		id := n.allocate()
		receipt.TokenID = &id
	case *ledger.TokenMint:
		for range body.Metadata {
			n.serials[body.TokenID]++
			receipt.SerialNumbers = append(receipt.SerialNumbers, n.serials[body.TokenID])
		}
	case *ledger.TopicCreate:
		id := n.allocate()
		receipt.TopicID = &id
	case *ledger.TopicMessageSubmit:
		n.sequences[body.TopicID]++
		receipt.TopicSequenceNumber = n.sequences[body.TopicID]
	case *ledger.ContractCreate:
		id := n.allocate()
		receipt.ContractID = &id
	case *ledger.ScheduleCreate:
		if _, err := body.Scheduled(); err != nil {
			receipt.Status = ledger.StatusInvalidBody
			break
		}
		id := n.allocate()
		scheduled := tx.TransactionID()
		scheduled.Scheduled = true
		if body.ScheduledTransactionID != nil {
			scheduled = *body.ScheduledTransactionID
		}
		receipt.ScheduleID = &id
		receipt.ScheduledTransactionID = &scheduled
	case nil:
		return ledger.Receipt{}, errors.New("transaction has no body")
	}
	return receipt, nil
}

func verifySignatures(tx *ledger.Envelope) ([]ledger.PublicKey, bool) {
	msg, err := tx.BodyBytes()
	if err != nil {
		return nil, false
	}
	sigs := tx.Signatures()
	keys := make([]ledger.PublicKey, 0, len(sigs))
	for _, sig := range sigs {
		if !sig.PublicKey.Verify(msg, sig.Bytes) {
			return nil, false
		}
		keys = append(keys, sig.PublicKey)
	}
	return keys, len(keys) > 0
}

// Satisfies evaluates key against the signing keys with real threshold
// semantics: a list with threshold t needs t satisfied members, threshold 0
// needs all of them.
func Satisfies(key ledger.Key, signers []ledger.PublicKey) bool {
	switch k := key.(type) {
	case ledger.PublicKey:
		for _, s := range signers {
			if s.Equal(k) {
				return true
			}
		}
		return false
	case *ledger.KeyList:
		if k == nil || len(k.Keys) == 0 {
			return false
		}
		need := k.Threshold
		if need <= 0 || need > len(k.Keys) {
			need = len(k.Keys)
		}
		got := 0
		for _, member := range k.Keys {
			if Satisfies(member, signers) {
				got++
			}
		}
		return got >= need
	default:
		return false
	}
}
