package mirror

import (
	"context"
	"log/slog"
	"net/url"

	xerrors "LedgerAgent-Kit/internal/errors"
	"LedgerAgent-Kit/internal/ledger"
)

// Account returns account details.
func (c *Client) Account(ctx context.Context, id ledger.AccountID) (*Account, error) {
	var out Account
	if err := c.getJSON(ctx, "/accounts/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccountKey returns the account's current key. Other components rely on
// it, so every failure is returned.
func (c *Client) AccountKey(ctx context.Context, id ledger.AccountID) (ledger.Key, error) {
	acct, err := c.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.Key == nil {
		return nil, xerrors.Newf(xerrors.CodeNotFound, "账户 %s 没有密钥", id)
	}
	return DecodeKey(*acct.Key)
}

// AccountBalance returns the tinybar and token balances of an account, or
// nil when the lookup fails. Failures are logged, not returned.
func (c *Client) AccountBalance(ctx context.Context, id ledger.AccountID) *AccountBalance {
	var out struct {
		Balances []AccountBalance `json:"balances"`
	}
	query := url.Values{"account.id": {id.String()}}
	if err := c.getJSON(ctx, "/balances", query, &out); err != nil {
		c.logger.Warn("查询账户余额失败", slog.String("account", id.String()), slog.String("error", err.Error()))
		return nil
	}
	if len(out.Balances) == 0 {
		return nil
	}
	return &out.Balances[0]
}

// AccountTokens returns the account's token relationships, or an empty slice
// when the lookup fails. Failures are logged, not returned.
func (c *Client) AccountTokens(ctx context.Context, id ledger.AccountID, limit int) []TokenRelationship {
	items, err := paginate[TokenRelationship](ctx, c, "/accounts/"+id.String()+"/tokens", nil, "tokens", pageOptions{Limit: limit})
	if err != nil {
		c.logger.Warn("查询账户代币失败", slog.String("account", id.String()), slog.String("error", err.Error()))
		return []TokenRelationship{}
	}
	return items
}

// AccountNFTs returns the NFTs an account owns, optionally filtered by token.
func (c *Client) AccountNFTs(ctx context.Context, id ledger.AccountID, token *ledger.TokenID, limit int) ([]NFT, error) {
	query := url.Values{}
	if token != nil {
		query.Set("token.id", token.String())
	}
	return paginate[NFT](ctx, c, "/accounts/"+id.String()+"/nfts", query, "nfts", pageOptions{Limit: limit})
}
