// Package lifi is a client for the Li.Fi cross-chain routing API.
package lifi

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/naisu-labs/naisu/clients/rest"
	"github.com/naisu-labs/naisu/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gopkg.in/h2non/gentleman.v2"
)

const (
	DefaultAPIURL = "https://li.quest/v1"

	apiKeyHeader = "x-lifi-api-key"

	// public Li.Fi limits are per minute, stay well below them
	defaultRPS   = 2
	defaultBurst = 5
)

type QuoteRequest struct {
	FromChain   string
	ToChain     string
	FromToken   string
	ToToken     string
	FromAmount  string
	FromAddress string
	ToAddress   string
	Slippage    *float64
}

type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	ChainID  uint64 `json:"chainId"`
	Name     string `json:"name"`
}

type QuoteAction struct {
	FromChainID uint64    `json:"fromChainId"`
	ToChainID   uint64    `json:"toChainId"`
	FromToken   TokenInfo `json:"fromToken"`
	ToToken     TokenInfo `json:"toToken"`
	FromAmount  string    `json:"fromAmount"`
	Slippage    float64   `json:"slippage"`
	FromAddress string    `json:"fromAddress"`
	ToAddress   string    `json:"toAddress"`
}

type FeeCost struct {
	Name       string    `json:"name"`
	Percentage string    `json:"percentage"`
	Token      TokenInfo `json:"token"`
	Amount     string    `json:"amount"`
}

type GasCost struct {
	Type     string    `json:"type"`
	Estimate string    `json:"estimate"`
	Limit    string    `json:"limit"`
	Amount   string    `json:"amount"`
	Token    TokenInfo `json:"token"`
}

type QuoteEstimate struct {
	FromAmount        string    `json:"fromAmount"`
	ToAmount          string    `json:"toAmount"`
	ToAmountMin       string    `json:"toAmountMin"`
	ApprovalAddress   string    `json:"approvalAddress"`
	ExecutionDuration uint64    `json:"executionDuration"`
	FeeCosts          []FeeCost `json:"feeCosts"`
	GasCosts          []GasCost `json:"gasCosts"`
}

type TransactionRequest struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit string `json:"gasLimit"`
	GasPrice string `json:"gasPrice"`
	ChainID  uint64 `json:"chainId"`
}

type Quote struct {
	ID                 string              `json:"id"`
	Type               string              `json:"type"`
	Tool               string              `json:"tool"`
	Action             QuoteAction         `json:"action"`
	Estimate           QuoteEstimate       `json:"estimate"`
	TransactionRequest *TransactionRequest `json:"transactionRequest,omitempty"`
}

type TransactionStatus struct {
	TxHash  string    `json:"txHash"`
	ChainID uint64    `json:"chainId"`
	Amount  string    `json:"amount"`
	Token   TokenInfo `json:"token"`
}

// BridgeStatus is the Li.Fi view of a bridge transfer. Status is PENDING, DONE or FAILED.
type BridgeStatus struct {
	TransactionID string             `json:"transactionId"`
	Sending       TransactionStatus  `json:"sending"`
	Receiving     *TransactionStatus `json:"receiving,omitempty"`
	Status        string             `json:"status"`
	Substatus     string             `json:"substatus,omitempty"`
}

type Chain struct {
	ID        uint64 `json:"id"`
	Key       string `json:"key"`
	Name      string `json:"name"`
	ChainType string `json:"chainType"`
}

// Client is a rate limited Li.Fi API client
type Client struct {
	http    *gentleman.Client
	apiKey  string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

type Option func(*Client)

// WithRateLimit overrides the outbound request rate
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func New(apiURL, apiKey string, logger zerolog.Logger, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	c := &Client{
		http:    rest.NewClient(strings.TrimRight(apiURL, "/"), rest.DefaultTimeout),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(defaultRPS, defaultBurst),
		logger:  logger.With().Str(logging.FieldModule, "lifi").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetQuote fetches a single-step quote
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	c.logger.Info().
		Str("from_chain", req.FromChain).
		Str("from_token", req.FromToken).
		Str("to_chain", req.ToChain).
		Str("to_token", req.ToToken).
		Msg("Fetching Li.Fi quote")

	r := c.request(c.http.Get().AddPath("/quote")).
		AddQuery("fromChain", req.FromChain).
		AddQuery("toChain", req.ToChain).
		AddQuery("fromToken", req.FromToken).
		AddQuery("toToken", req.ToToken).
		AddQuery("fromAmount", req.FromAmount).
		AddQuery("fromAddress", req.FromAddress).
		AddQuery("toAddress", req.ToAddress)

	if req.Slippage != nil {
		r.AddQuery("slippage", strconv.FormatFloat(*req.Slippage, 'f', -1, 64))
	}

	var quote Quote
	if err := c.do(ctx, r, &quote); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("from_amount", quote.Estimate.FromAmount).
		Str("to_amount", quote.Estimate.ToAmount).
		Uint64("duration_s", quote.Estimate.ExecutionDuration).
		Msg("Got Li.Fi quote")

	return &quote, nil
}

// GetRoutes lists the recommended routes for a token pair
func (c *Client) GetRoutes(ctx context.Context, fromChain, toChain, fromToken, toToken, fromAmount string) ([]Quote, error) {
	body := map[string]any{
		"fromChainId":      fromChain,
		"toChainId":        toChain,
		"fromTokenAddress": fromToken,
		"toTokenAddress":   toToken,
		"fromAmount":       fromAmount,
		"options": map[string]any{
			"slippage": 0.03,
			"order":    "RECOMMENDED",
		},
	}

	r := c.request(c.http.Post().AddPath("/routes")).JSON(body)

	var res struct {
		Routes []Quote `json:"routes"`
	}

	if err := c.do(ctx, r, &res); err != nil {
		return nil, err
	}

	return res.Routes, nil
}

// GetStatus checks a bridge transfer by its source transaction
func (c *Client) GetStatus(ctx context.Context, txHash, fromChain string) (*BridgeStatus, error) {
	r := c.request(c.http.Get().AddPath("/status")).
		AddQuery("txHash", txHash).
		AddQuery("fromChain", fromChain)

	var status BridgeStatus
	if err := c.do(ctx, r, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

func (c *Client) GetChains(ctx context.Context) ([]Chain, error) {
	var res struct {
		Chains []Chain `json:"chains"`
	}

	if err := c.do(ctx, c.request(c.http.Get().AddPath("/chains")), &res); err != nil {
		return nil, err
	}

	return res.Chains, nil
}

// GetTokens lists the tokens known on the given chains
func (c *Client) GetTokens(ctx context.Context, chains ...string) ([]TokenInfo, error) {
	r := c.request(c.http.Get().AddPath("/tokens")).AddQuery("chains", strings.Join(chains, ","))

	var res struct {
		Tokens map[string][]TokenInfo `json:"tokens"`
	}

	if err := c.do(ctx, r, &res); err != nil {
		return nil, err
	}

	var tokens []TokenInfo
	for _, chain := range slices.Sorted(maps.Keys(res.Tokens)) {
		tokens = append(tokens, res.Tokens[chain]...)
	}

	return tokens, nil
}

func (c *Client) request(r *gentleman.Request) *gentleman.Request {
	if c.apiKey != "" {
		r.SetHeader(apiKeyHeader, c.apiKey)
	}
	return r
}

func (c *Client) do(ctx context.Context, r *gentleman.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "li.fi rate limiter")
	}

	if err := rest.Do(ctx, "li.fi", r, out); err != nil {
		c.logger.Error().Err(err).Msg("Li.Fi request failed")
		return err
	}

	return nil
}
