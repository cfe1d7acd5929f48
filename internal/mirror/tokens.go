package mirror

import (
	"context"
	"net/url"

	"LedgerAgent-Kit/internal/ledger"
)

// TokenInfo returns token details.
func (c *Client) TokenInfo(ctx context.Context, id ledger.TokenID) (*TokenInfo, error) {
	var out TokenInfo
	if err := c.getJSON(ctx, "/tokens/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TokenBalances lists holders of a token. At most ten pages are read.
func (c *Client) TokenBalances(ctx context.Context, id ledger.TokenID, account *ledger.AccountID, limit int) ([]TokenHolder, error) {
	query := url.Values{}
	if account != nil {
		query.Set("account.id", account.String())
	}
	return paginate[TokenHolder](ctx, c, "/tokens/"+id.String()+"/balances", query, "balances",
		pageOptions{Limit: limit, MaxPages: maxSafePages})
}
