// Package defillama reads lending pool yields from the DefiLlama yields API.
package defillama

import (
	"context"
	"strings"

	"github.com/naisu-labs/naisu/clients/rest"
	"github.com/naisu-labs/naisu/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/h2non/gentleman.v2"
)

const (
	DefaultAPIURL = "https://yields.llama.fi"

	ProjectScallop = "scallop-lend"
	ProjectNavi    = "navi-lending"

	ChainSui = "Sui"
)

var ErrPoolNotFound = errors.New("pool not found")

// Pool is one entry of the /pools listing
type Pool struct {
	Pool      string           `json:"pool"`
	Chain     string           `json:"chain"`
	Project   string           `json:"project"`
	Symbol    string           `json:"symbol"`
	TVLUsd    decimal.Decimal  `json:"tvlUsd"`
	APY       decimal.Decimal  `json:"apy"`
	APYBase   *decimal.Decimal `json:"apyBase"`
	APYReward *decimal.Decimal `json:"apyReward"`
}

type Client struct {
	http   *gentleman.Client
	logger zerolog.Logger
}

func New(apiURL string, logger zerolog.Logger) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	return &Client{
		http:   rest.NewClient(strings.TrimRight(apiURL, "/"), rest.DefaultTimeout),
		logger: logger.With().Str(logging.FieldModule, "defillama").Logger(),
	}
}

// Pools returns every pool DefiLlama tracks
func (c *Client) Pools(ctx context.Context) ([]Pool, error) {
	var res struct {
		Status string `json:"status"`
		Data   []Pool `json:"data"`
	}

	if err := rest.Do(ctx, "defillama", c.http.Get().AddPath("/pools"), &res); err != nil {
		return nil, err
	}

	if res.Status != "" && res.Status != "success" {
		return nil, errors.Errorf("defillama returned status %q", res.Status)
	}

	c.logger.Debug().Int("pools", len(res.Data)).Msg("Fetched pools")

	return res.Data, nil
}

// FindPool returns the largest pool (by TVL) matching project, chain and symbol
func (c *Client) FindPool(ctx context.Context, project, chain, symbol string) (*Pool, error) {
	pools, err := c.Pools(ctx)
	if err != nil {
		return nil, err
	}

	return MatchPool(pools, project, chain, symbol)
}

// MatchPool picks the largest matching pool. A bridged USDC.e pool counts as USDC.
func MatchPool(pools []Pool, project, chain, symbol string) (*Pool, error) {
	var best *Pool

	for i := range pools {
		p := &pools[i]
		if !strings.EqualFold(p.Project, project) || !strings.EqualFold(p.Chain, chain) {
			continue
		}

		if !symbolMatches(p.Symbol, symbol) {
			continue
		}

		if best == nil || p.TVLUsd.GreaterThan(best.TVLUsd) {
			best = p
		}
	}

	if best == nil {
		return nil, errors.Wrapf(ErrPoolNotFound, "%s %s %s", project, chain, symbol)
	}

	return best, nil
}

func symbolMatches(poolSymbol, symbol string) bool {
	poolSymbol = strings.ToUpper(poolSymbol)
	symbol = strings.ToUpper(symbol)

	if poolSymbol == symbol {
		return true
	}

	return symbol == "USDC" && poolSymbol == "USDC.E"
}
