package main

import (
	"context"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/naisu-labs/naisu/clients/rest"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/naisu-labs/naisu/solver"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	handledCacheSize = 4096
	usdcDecimals     = 6
)

var ErrNoStrategy = errors.New("no enabled strategy")

// api is the slice of the Naisu REST API the bot needs
type api interface {
	ListAuctions(ctx context.Context, status models.AuctionStatus) ([]*models.Auction, error)
	GetAuction(ctx context.Context, id string) (*models.AuctionResponse, error)
	GetIntent(ctx context.Context, id string) (*models.IntentResponse, error)
	ListStrategies(ctx context.Context) ([]*models.StrategyResponse, error)
	SubmitBid(ctx context.Context, auctionID string, bid models.SubmitBidRequest) (*models.Bid, error)
	Fill(ctx context.Context, auctionID string, fill models.FillRequest) (*models.Bid, error)
}

// balanceFunc reports whether the solver can deliver amount USDC
type balanceFunc func(ctx context.Context, amount decimal.Decimal) (bool, error)

type bot struct {
	api     api
	address string
	quoter  solver.Quoter
	rules   solver.Rules
	balance balanceFunc

	// auctions already bid on or given up on
	handled *lru.Cache

	now    func() time.Time
	logger zerolog.Logger
}

func newBot(client api, cfg solverConfig, balance balanceFunc, logger zerolog.Logger) (*bot, error) {
	handled, err := lru.New(handledCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create auction cache")
	}

	return &bot{
		api:     client,
		address: cfg.Address,
		quoter:  solver.Quoter{SpreadBps: cfg.SpreadBps},
		rules:   solver.Rules{MaxAmount: cfg.maxAmount(), MinAPYBps: cfg.MinAPYBps},
		balance: balance,
		handled: handled,
		now:     time.Now,
		logger:  logger.With().Str(logging.FieldModule, "solver").Str("solver", cfg.Address).Logger(),
	}, nil
}

// Run ticks every interval until ctx is done
func (b *bot) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.logger.Info().Dur("interval", interval).Msg("Solver started")

	for {
		if err := b.Tick(ctx); err != nil && ctx.Err() == nil {
			b.logger.Warn().Err(err).Msg("Tick failed")
		}

		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Solver stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick makes one pass over the open auctions
func (b *bot) Tick(ctx context.Context) error {
	auctions, err := b.api.ListAuctions(ctx, models.AuctionStatusOpen)
	if err != nil {
		return errors.Wrap(err, "failed to list open auctions")
	}

	for _, auction := range auctions {
		if b.handled.Contains(auction.ID) {
			continue
		}

		logger := b.logger.With().
			Str(logging.FieldAuction, auction.ID).
			Str(logging.FieldIntent, auction.IntentID).
			Str("kind", string(auction.Kind)).
			Logger()

		if !b.now().Before(auction.EndsAt) {
			b.handled.Add(auction.ID, struct{}{})
			continue
		}

		var done bool

		switch auction.Kind {
		case models.AuctionKindSealedBid:
			done, err = b.bidSealed(ctx, auction)
		case models.AuctionKindDutch:
			done, err = b.fillDutch(ctx, auction)
		default:
			continue
		}

		switch {
		case err == nil:
		case isFinal(err):
			logger.Info().Err(err).Msg("Skipping auction")
			done = true
		default:
			logger.Warn().Err(err).Msg("Failed to compete, retrying next tick")
		}

		if done {
			b.handled.Add(auction.ID, struct{}{})
		}
	}

	return nil
}

// isFinal reports errors that will not go away on retry
func isFinal(err error) bool {
	if errors.Is(err, solver.ErrAPYTooLow) || errors.Is(err, solver.ErrAmountTooLarge) || errors.Is(err, ErrNoStrategy) {
		return true
	}

	var apiErr *rest.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusConflict || apiErr.Status == http.StatusBadRequest
	}

	return false
}

// sealedBid is what the solver would offer on a sealed-bid auction
type sealedBid struct {
	Strategy *models.StrategyResponse
	APYBps   int64
}

func (b *bot) priceSealed(ctx context.Context, auction *models.Auction) (*sealedBid, error) {
	strategies, err := b.api.ListStrategies(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list strategies")
	}

	best, apyBps := bestStrategy(strategies)
	if best == nil {
		return nil, ErrNoStrategy
	}

	intent, err := b.api.GetIntent(ctx, auction.IntentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get intent")
	}

	amount, err := decimal.NewFromString(intent.InputAmount)
	if err != nil {
		return nil, errors.Wrapf(models.ErrInvalidAmount, "%q", intent.InputAmount)
	}

	bid := b.quoter.BidAPY(apyBps)

	if err := b.rules.Check(amount, bid); err != nil {
		return nil, err
	}

	if bid < auction.MinAPYBps {
		return nil, errors.Wrapf(solver.ErrAPYTooLow, "%d below the intent minimum %d", bid, auction.MinAPYBps)
	}

	return &sealedBid{Strategy: best, APYBps: bid}, nil
}

func (b *bot) bidSealed(ctx context.Context, auction *models.Auction) (bool, error) {
	quote, err := b.priceSealed(ctx, auction)
	if err != nil {
		return false, err
	}

	bid, err := b.api.SubmitBid(ctx, auction.ID, models.SubmitBidRequest{
		Solver:     b.address,
		APYBps:     quote.APYBps,
		StrategyID: quote.Strategy.ID,
	})
	if err != nil {
		return false, err
	}

	b.logger.Info().
		Str(logging.FieldAuction, auction.ID).
		Str("bid_id", bid.ID).
		Int64("apy_bps", quote.APYBps).
		Str("strategy", quote.Strategy.Name).
		Msg("Bid submitted")

	return true, nil
}

// dutchFill is what the solver would deliver on a Dutch auction right now
type dutchFill struct {
	Price   decimal.Decimal
	Deliver decimal.Decimal
	Amount  decimal.Decimal
	Ready   bool
}

// priceDutch compares what the solver can deliver with the current required output.
// The solver values the auction at its opening amount less its spread.
func (b *bot) priceDutch(ctx context.Context, auction *models.Auction) (*dutchFill, error) {
	res, err := b.api.GetAuction(ctx, auction.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get auction")
	}

	if res.CurrentPrice == "" {
		return nil, &rest.APIError{Service: "naisu", Status: http.StatusConflict, Body: "auction no longer open"}
	}

	price, err := decimal.NewFromString(res.CurrentPrice)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid current price %q", res.CurrentPrice)
	}

	fill := &dutchFill{
		Price:   price,
		Deliver: b.quoter.DeliverAmount(auction.StartAmount),
		Amount:  price.RoundCeil(usdcDecimals),
	}

	fill.Ready = fill.Amount.LessThanOrEqual(fill.Deliver)

	if err := b.rules.CheckAmount(fill.Amount); err != nil {
		return nil, err
	}

	return fill, nil
}

func (b *bot) fillDutch(ctx context.Context, auction *models.Auction) (bool, error) {
	fill, err := b.priceDutch(ctx, auction)
	if err != nil {
		return false, err
	}

	if !fill.Ready {
		b.logger.Debug().
			Str(logging.FieldAuction, auction.ID).
			Str("price", fill.Price.String()).
			Str("deliverable", fill.Deliver.String()).
			Msg("Price still above what we deliver")
		return false, nil
	}

	if b.balance != nil {
		ok, err := b.balance(ctx, fill.Amount)
		if err != nil {
			return false, errors.Wrap(err, "failed to check balance")
		}

		if !ok {
			b.logger.Warn().Str(logging.FieldAuction, auction.ID).Str("amount", fill.Amount.String()).Msg("Not enough USDC to fill")
			return false, nil
		}
	}

	bid, err := b.api.Fill(ctx, auction.ID, models.FillRequest{
		Solver: b.address,
		Amount: fill.Amount.String(),
	})
	if err != nil {
		return false, err
	}

	b.logger.Info().
		Str(logging.FieldAuction, auction.ID).
		Str("bid_id", bid.ID).
		Str("amount", fill.Amount.String()).
		Msg("Dutch auction filled")

	return true, nil
}

// bestStrategy returns the enabled strategy with the highest APY, in bps. Ties go to the lowest id.
func bestStrategy(strategies []*models.StrategyResponse) (*models.StrategyResponse, int64) {
	var (
		best   *models.StrategyResponse
		bestBp int64
	)

	for _, s := range strategies {
		if s == nil || !s.Enabled {
			continue
		}

		apy, err := decimal.NewFromString(s.APY)
		if err != nil {
			continue
		}

		bps := apy.Shift(2).IntPart()

		if best == nil || bps > bestBp || (bps == bestBp && s.ID < best.ID) {
			best, bestBp = s, bps
		}
	}

	return best, bestBp
}

// quote is the bid the solver would make for an intent, as printed by the quote command
type quote struct {
	IntentID   string `json:"intent_id"`
	AuctionID  string `json:"auction_id"`
	Kind       string `json:"kind"`
	StrategyID uint8  `json:"strategy_id,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
	APYBps     int64  `json:"apy_bps,omitempty"`
	Price      string `json:"current_price,omitempty"`
	Amount     string `json:"amount,omitempty"`
	Eligible   bool   `json:"eligible"`
	Reason     string `json:"reason,omitempty"`
}

func (b *bot) Quote(ctx context.Context, intentID string) (*quote, error) {
	auctions, err := b.api.ListAuctions(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list auctions")
	}

	var auction *models.Auction
	for _, a := range auctions {
		if a.IntentID == intentID {
			auction = a
			break
		}
	}

	if auction == nil {
		return nil, errors.Wrapf(models.ErrAuctionNotFound, "no auction for intent %s", intentID)
	}

	q := &quote{IntentID: intentID, AuctionID: auction.ID, Kind: string(auction.Kind)}

	if auction.Status != models.AuctionStatusOpen {
		q.Reason = "auction is " + string(auction.Status)
		return q, nil
	}

	switch auction.Kind {
	case models.AuctionKindSealedBid:
		bid, err := b.priceSealed(ctx, auction)
		if err != nil {
			if !isFinal(err) {
				return nil, err
			}
			q.Reason = err.Error()
			return q, nil
		}

		q.StrategyID, q.Strategy, q.APYBps, q.Eligible = bid.Strategy.ID, bid.Strategy.Name, bid.APYBps, true
	case models.AuctionKindDutch:
		fill, err := b.priceDutch(ctx, auction)
		if err != nil {
			if !isFinal(err) {
				return nil, err
			}
			q.Reason = err.Error()
			return q, nil
		}

		q.Price, q.Amount, q.Eligible = fill.Price.String(), fill.Amount.String(), fill.Ready
		if !fill.Ready {
			q.Reason = "can deliver at most " + fill.Deliver.StringFixed(usdcDecimals)
		}
	}

	return q, nil
}
