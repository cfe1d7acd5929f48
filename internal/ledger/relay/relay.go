// Package relay submits signed transactions to an HTTP relay that forwards
// them to consensus nodes and returns the receipt.
package relay

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
)

// Config describes the relay endpoint.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Nodes   []ledger.AccountID
}

// Submitter implements ledger.Submitter by POSTing base64 bytes to
// {URL}/transactions.
type Submitter struct {
	http  *resty.Client
	url   string
	nodes []ledger.AccountID
}

type submitRequest struct {
	Bytes string `json:"bytes"`
}

type submitError struct {
	Error string `json:"error"`
}

// New creates a relay submitter.
func New(cfg Config) (*Submitter, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "relay url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &Submitter{http: client, url: base + "/transactions", nodes: append([]ledger.AccountID(nil), cfg.Nodes...)}, nil
}

// Nodes returns the node accounts transactions should be addressed to.
func (s *Submitter) Nodes() []ledger.AccountID {
	return append([]ledger.AccountID(nil), s.nodes...)
}

// Submit forwards raw to the relay. A non-2xx reply is a submission failure;
// a receipt with a failing status is returned as-is for the signer to judge.
func (s *Submitter) Submit(ctx context.Context, raw []byte) (ledger.Receipt, error) {
	var (
		receipt ledger.Receipt
		failure submitError
	)
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(submitRequest{Bytes: base64.StdEncoding.EncodeToString(raw)}).
		SetResult(&receipt).
		SetError(&failure).
		Post(s.url)
	if err != nil {
		return ledger.Receipt{}, xerrors.Wrap(xerrors.CodeSubmissionFailure, err, "relay request failed")
	}
	if resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = resp.Status()
		}
		return ledger.Receipt{}, xerrors.Newf(xerrors.CodeSubmissionFailure, "relay rejected transaction: %s", msg)
	}
	if receipt.Status == "" {
		return ledger.Receipt{}, xerrors.New(xerrors.CodeSubmissionFailure, "relay returned an empty receipt")
	}
	return receipt, nil
}

var _ ledger.Submitter = (*Submitter)(nil)
