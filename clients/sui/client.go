// Package sui talks to a Sui fullnode over JSON-RPC and plans deposit transactions.
package sui

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/naisu-labs/naisu/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Coin types
const (
	CoinSUI         = "0x2::sui::SUI"
	CoinUSDCTestnet = "0xa1ec7fc00a6f40db9693ad1415d0c193ad3906494428cf252621037bd7117e29::usdc::USDC"
	CoinUSDCMainnet = "0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC"
)

// Balance is the suix_getBalance result
type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    string `json:"totalBalance"`
}

// Total parses the raw balance
func (b Balance) Total() (decimal.Decimal, error) {
	return decimal.NewFromString(b.TotalBalance)
}

// Client is a thin Sui JSON-RPC 2.0 client
type Client struct {
	rpc    *rpc.Client
	logger zerolog.Logger
}

// Dial connects to a Sui fullnode
func Dial(ctx context.Context, url string, logger zerolog.Logger) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial sui rpc %s", url)
	}

	return &Client{
		rpc:    c,
		logger: logger.With().Str(logging.FieldModule, "sui_client").Logger(),
	}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// LatestCheckpoint returns the latest checkpoint sequence number
func (c *Client) LatestCheckpoint(ctx context.Context) (uint64, error) {
	var raw string
	if err := c.rpc.CallContext(ctx, &raw, "sui_getLatestCheckpointSequenceNumber"); err != nil {
		return 0, errors.Wrap(err, "sui_getLatestCheckpointSequenceNumber")
	}

	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid checkpoint %q", raw)
	}

	return seq, nil
}

// GetBalance returns the balance of coinType held by owner
func (c *Client) GetBalance(ctx context.Context, owner, coinType string) (*Balance, error) {
	var balance Balance
	if err := c.rpc.CallContext(ctx, &balance, "suix_getBalance", owner, coinType); err != nil {
		return nil, errors.Wrap(err, "suix_getBalance")
	}

	return &balance, nil
}

// HasBridgedFunds reports whether owner holds at least amount raw USDC units
func (c *Client) HasBridgedFunds(ctx context.Context, owner, usdcCoinType string, amount uint64) (bool, error) {
	balance, err := c.GetBalance(ctx, owner, usdcCoinType)
	if err != nil {
		return false, err
	}

	total, err := balance.Total()
	if err != nil {
		return false, errors.Wrap(err, "invalid balance")
	}

	c.logger.Debug().
		Str("owner", owner).
		Str("balance", total.String()).
		Uint64("expected", amount).
		Msg("Checked bridged funds")

	return total.GreaterThanOrEqual(decimal.NewFromUint64(amount)), nil
}
