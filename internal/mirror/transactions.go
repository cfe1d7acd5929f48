package mirror

import (
	"context"
	"net/url"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
)

// TransactionsFilter narrows a transaction list query.
type TransactionsFilter struct {
	AccountID *ledger.AccountID
	// Type is a mirror transaction type such as CRYPTOTRANSFER.
	Type string
	// Result is success or fail.
	Result string
	Order  string
	Limit  int
}

// Transactions lists transactions matching filter.
func (c *Client) Transactions(ctx context.Context, filter TransactionsFilter) ([]Txn, error) {
	query := url.Values{}
	if filter.AccountID != nil {
		query.Set("account.id", filter.AccountID.String())
	}
	if filter.Type != "" {
		query.Set("transactiontype", filter.Type)
	}
	if filter.Result != "" {
		query.Set("result", filter.Result)
	}
	if filter.Order != "" {
		query.Set("order", filter.Order)
	}
	return paginate[Txn](ctx, c, "/transactions", query, "transactions", pageOptions{Limit: filter.Limit})
}

// Transaction returns the records of one transaction id. A scheduled
// transaction shares its id with the schedule creation, so more than one
// record can come back.
func (c *Client) Transaction(ctx context.Context, id ledger.TransactionID) ([]Txn, error) {
	var out struct {
		Transactions []Txn `json:"transactions"`
	}
	if err := c.getJSON(ctx, "/transactions/"+id.MirrorString(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Transactions) == 0 {
		return nil, xerrors.Newf(xerrors.CodeNotFound, "交易 %s 不存在", id)
	}
	return out.Transactions, nil
}

// ScheduleInfo returns schedule details.
func (c *Client) ScheduleInfo(ctx context.Context, id ledger.ScheduleID) (*ScheduleInfo, error) {
	var out ScheduleInfo
	if err := c.getJSON(ctx, "/schedules/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContractInfo returns contract details.
func (c *Client) ContractInfo(ctx context.Context, id ledger.ContractID) (*ContractInfo, error) {
	var out ContractInfo
	if err := c.getJSON(ctx, "/contracts/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExchangeRate returns the current hbar/USD cent rate, or nil when the
// lookup fails. Failures are logged, not returned.
func (c *Client) ExchangeRate(ctx context.Context) *ExchangeRate {
	var out ExchangeRate
	if err := c.getJSON(ctx, "/network/exchangerate", nil, &out); err != nil {
		c.logger.Warn("查询汇率失败", "error", err.Error())
		return nil
	}
	return &out
}
