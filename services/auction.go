package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/naisu-labs/naisu/clients/wormhole"
	"github.com/naisu-labs/naisu/db"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/naisu-labs/naisu/solver"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultBidWindow       = 30 * time.Second
	DefaultDutchDuration   = 5 * time.Minute
	DefaultSettlerInterval = time.Second
)

// VAAVerifier checks a guardian-signed VAA submitted with a fill
type VAAVerifier interface {
	ParseAndVerify(encoded string) (*wormhole.VAA, error)
}

type AuctionConfig struct {
	BidWindow       time.Duration
	DutchDuration   time.Duration
	DutchPremiumBps int64
	SettleInterval  time.Duration
}

// AuctionService runs the solver competitions: sealed-bid APY auctions for EVM -> Sui intents
// and Dutch delivery auctions for Sui -> EVM intents.
type AuctionService struct {
	db        db.Database
	queue     Enqueuer
	publisher Publisher
	verifier  VAAVerifier
	metrics   *MetricsService
	cfg       AuctionConfig
	now       func() time.Time
	logger    zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ IntentSink = (*AuctionService)(nil)

func NewAuctionService(
	database db.Database,
	queue Enqueuer,
	publisher Publisher,
	verifier VAAVerifier,
	metrics *MetricsService,
	cfg AuctionConfig,
	logger zerolog.Logger,
) *AuctionService {
	if cfg.BidWindow <= 0 {
		cfg.BidWindow = DefaultBidWindow
	}

	if cfg.DutchDuration <= 0 {
		cfg.DutchDuration = DefaultDutchDuration
	}

	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = DefaultSettlerInterval
	}

	if publisher == nil {
		publisher = nopPublisher{}
	}

	return &AuctionService{
		db:        database,
		queue:     queue,
		publisher: publisher,
		verifier:  verifier,
		metrics:   metrics,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str(logging.FieldModule, "auctions").Logger(),
	}
}

// OnIntentCreated opens the competition that matches the intent's direction
func (s *AuctionService) OnIntentCreated(ctx context.Context, intent *models.Intent) error {
	var err error

	switch intent.Direction {
	case models.DirectionEvmToSui:
		_, err = s.OpenSealedBid(ctx, intent)
	case models.DirectionSuiToEvm:
		_, err = s.OpenDutch(ctx, intent)
	default:
		err = errors.Errorf("unknown direction %q", intent.Direction)
	}

	return err
}

// OpenSealedBid opens an APY auction that collects bids for the bid window
func (s *AuctionService) OpenSealedBid(ctx context.Context, intent *models.Intent) (*models.Auction, error) {
	now := s.now()

	auction := &models.Auction{
		ID:        uuid.New().String(),
		IntentID:  intent.ID,
		Kind:      models.AuctionKindSealedBid,
		Status:    models.AuctionStatusOpen,
		MinAPYBps: intent.MinAPYBps,
		StartsAt:  now,
		EndsAt:    now.Add(s.cfg.BidWindow),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.db.CreateAuction(ctx, auction); err != nil {
		return nil, errors.Wrap(err, "failed to open sealed-bid auction")
	}

	s.logger.Info().
		Str(logging.FieldAuction, auction.ID).
		Str(logging.FieldIntent, intent.ID).
		Time("ends_at", auction.EndsAt).
		Msg("Sealed-bid auction opened")

	return auction, nil
}

// OpenDutch opens a delivery auction whose required output decays to the intent's USDC amount
func (s *AuctionService) OpenDutch(ctx context.Context, intent *models.Intent) (*models.Auction, error) {
	amount, err := decimal.NewFromString(intent.USDCAmount)
	if err != nil || !amount.IsPositive() {
		return nil, errors.Wrapf(models.ErrInvalidAmount, "%q", intent.USDCAmount)
	}

	now := s.now()
	dutch := solver.NewDutchAuctionForIntent(amount, s.cfg.DutchPremiumBps, s.cfg.DutchDuration, now)

	auction := &models.Auction{
		ID:          uuid.New().String(),
		IntentID:    intent.ID,
		Kind:        models.AuctionKindDutch,
		Status:      models.AuctionStatusOpen,
		MinAPYBps:   intent.MinAPYBps,
		StartAmount: dutch.Start,
		FloorAmount: dutch.Floor,
		StartsAt:    dutch.StartsAt,
		EndsAt:      dutch.EndsAt(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.CreateAuction(ctx, auction); err != nil {
		return nil, errors.Wrap(err, "failed to open dutch auction")
	}

	s.logger.Info().
		Str(logging.FieldAuction, auction.ID).
		Str(logging.FieldIntent, intent.ID).
		Str("start", dutch.Start.String()).
		Str("floor", dutch.Floor.String()).
		Msg("Dutch auction opened")

	return auction, nil
}

// CurrentPrice returns the Dutch price at the service's clock. Sealed-bid auctions have none.
func (s *AuctionService) CurrentPrice(auction *models.Auction) (decimal.Decimal, bool) {
	if auction.Kind != models.AuctionKindDutch {
		return decimal.Zero, false
	}

	return solver.DutchFromAuction(auction).PriceAt(s.now()), true
}

// SubmitBid records an APY bid on an open sealed-bid auction
func (s *AuctionService) SubmitBid(ctx context.Context, auctionID string, req models.SubmitBidRequest) (*models.Bid, error) {
	auction, err := s.db.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.Kind != models.AuctionKindSealedBid {
		return nil, &models.InvalidStateError{
			Expected: string(models.AuctionKindSealedBid),
			Actual:   string(auction.Kind),
		}
	}

	now := s.now()
	if !auction.IsOpen() || !now.Before(auction.EndsAt) {
		return nil, errors.Wrap(models.ErrAuctionClosed, auction.ID)
	}

	if req.APYBps < auction.MinAPYBps {
		return nil, errors.Wrapf(models.ErrBidTooLow, "%d bps is below the minimum of %d", req.APYBps, auction.MinAPYBps)
	}

	if req.StrategyID == 0 {
		return nil, models.ErrStrategyRequired
	}

	bid := &models.Bid{
		ID:        uuid.New().String(),
		AuctionID: auction.ID,
		Solver:    req.Solver,
		APYBps:    req.APYBps,
		Strategy:  models.YieldStrategy(req.StrategyID),
		CreatedAt: now,
	}

	if err := s.db.CreateBid(ctx, bid); err != nil {
		return nil, errors.Wrap(err, "failed to store bid")
	}

	if s.metrics != nil {
		s.metrics.ObserveBid(auction.Kind)
	}

	s.logger.Info().
		Str(logging.FieldAuction, auction.ID).
		Str("solver", bid.Solver).
		Int64("apy_bps", bid.APYBps).
		Msg("Bid received")

	return bid, nil
}

// Fill accepts a solver's delivery on a Dutch auction. The first fill covering the current
// price wins. The bid and the closed auction are stored together, so a second fill is rejected
// and a failed write leaves the auction open.
func (s *AuctionService) Fill(ctx context.Context, auctionID string, req models.FillRequest) (*models.Bid, error) {
	auction, err := s.db.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.Kind != models.AuctionKindDutch {
		return nil, &models.InvalidStateError{
			Expected: string(models.AuctionKindDutch),
			Actual:   string(auction.Kind),
		}
	}

	if !auction.IsOpen() {
		return nil, errors.Wrap(models.ErrAuctionClosed, auction.ID)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, errors.Wrapf(models.ErrInvalidAmount, "%q", req.Amount)
	}

	now := s.now()
	dutch := solver.DutchFromAuction(auction)

	if dutch.Expired(now) {
		if err := s.expire(ctx, auction, now); err != nil {
			s.logger.Warn().Err(err).Str(logging.FieldAuction, auction.ID).Msg("Failed to expire auction")
		}
		return nil, errors.Wrap(models.ErrAuctionClosed, "auction expired")
	}

	if !dutch.CanFill(amount, now) {
		return nil, errors.Wrapf(models.ErrBidTooLow, "%s is below the current price %s",
			amount.String(), dutch.PriceAt(now).StringFixed(6))
	}

	if req.VAA != "" && s.verifier != nil {
		if _, err := s.verifier.ParseAndVerify(req.VAA); err != nil {
			return nil, errors.Wrap(err, "vaa rejected")
		}
	}

	bid := &models.Bid{
		ID:        uuid.New().String(),
		AuctionID: auction.ID,
		Solver:    req.Solver,
		Amount:    amount,
		TxHash:    req.TxHash,
		VAA:       req.VAA,
		CreatedAt: now,
	}

	settled := *auction
	settled.Status = models.AuctionStatusSettled
	settled.WinningBidID = bid.ID
	settled.UpdatedAt = now

	if err := s.db.SettleAuction(ctx, &settled, bid); err != nil {
		return nil, err
	}

	*auction = settled

	if s.metrics != nil {
		s.metrics.ObserveBid(auction.Kind)
	}

	if req.TxHash != "" {
		s.recordDelivery(ctx, auction.IntentID, req.TxHash)
	}

	s.logger.Info().
		Str(logging.FieldAuction, auction.ID).
		Str("solver", bid.Solver).
		Str("amount", amount.String()).
		Msg("Dutch auction filled")

	return bid, nil
}

// recordDelivery stores the solver's delivery tx on the intent. Only the tx hash is written, the
// status stays whatever the orchestrator stored last.
func (s *AuctionService) recordDelivery(ctx context.Context, intentID, txHash string) {
	intent, _, err := updateIntent(ctx, s.db, intentID, func(intent *models.Intent) error {
		intent.DestTxHash = txHash
		intent.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str(logging.FieldIntent, intentID).Msg("Failed to record delivery")
		return
	}

	s.publisher.Publish(intent.ToUpdate())
}

// SettleDue closes every auction whose window ended before now and returns how many were closed
func (s *AuctionService) SettleDue(ctx context.Context, now time.Time) (int, error) {
	auctions, err := s.db.ListAuctions(ctx, string(models.AuctionStatusOpen))
	if err != nil {
		return 0, errors.Wrap(err, "failed to list open auctions")
	}

	settled := 0

	for _, auction := range auctions {
		if now.Before(auction.EndsAt) {
			continue
		}

		var err error
		if auction.Kind == models.AuctionKindSealedBid {
			err = s.settleSealedBid(ctx, auction, now)
		} else {
			err = s.expire(ctx, auction, now)
		}

		switch {
		case errors.Is(err, models.ErrAuctionClosed):
			// closed concurrently
		case err != nil:
			s.logger.Error().Err(err).Str(logging.FieldAuction, auction.ID).Msg("Failed to settle auction")
		default:
			settled++
		}
	}

	return settled, nil
}

func (s *AuctionService) settleSealedBid(ctx context.Context, auction *models.Auction, now time.Time) error {
	logger := s.logger.With().
		Str(logging.FieldAuction, auction.ID).
		Str(logging.FieldIntent, auction.IntentID).
		Logger()

	bids, err := s.db.ListBids(ctx, auction.ID)
	if err != nil {
		return errors.Wrap(err, "failed to list bids")
	}

	winner, err := solver.SelectWinner(bids, auction.MinAPYBps)
	switch {
	case errors.Is(err, solver.ErrNoEligibleBids):
		auction.Status = models.AuctionStatusExpired
	case err != nil:
		return err
	default:
		auction.Status = models.AuctionStatusSettled
		auction.WinningBidID = winner.ID
	}

	auction.UpdatedAt = now

	if err := s.db.UpdateAuction(ctx, auction); err != nil {
		return err
	}

	if winner != nil {
		strategy := winner.Strategy

		_, _, err := updateIntent(ctx, s.db, auction.IntentID, func(intent *models.Intent) error {
			if intent.Status.IsTerminal() {
				return errUnchanged
			}

			intent.Strategy = &strategy
			intent.UpdatedAt = now

			return nil
		})
		if err != nil {
			return errors.Wrap(err, "failed to apply winning strategy")
		}

		logger.Info().
			Str("solver", winner.Solver).
			Int64("apy_bps", winner.APYBps).
			Uint8("strategy_id", strategy.ID()).
			Msg("Sealed-bid auction settled")
	} else {
		logger.Info().Int("bids", len(bids)).Msg("No eligible bids, intent keeps its own strategy")
	}

	if s.queue != nil {
		s.queue.Enqueue(auction.IntentID)
	}

	return nil
}

func (s *AuctionService) expire(ctx context.Context, auction *models.Auction, now time.Time) error {
	auction.Status = models.AuctionStatusExpired
	auction.UpdatedAt = now

	if err := s.db.UpdateAuction(ctx, auction); err != nil {
		return err
	}

	s.logger.Info().Str(logging.FieldAuction, auction.ID).Msg("Auction expired")

	return nil
}

// StartSettler runs SettleDue on every tick until ctx is done or Shutdown is called
func (s *AuctionService) StartSettler(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.SettleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, DefaultDBTimeout)
				if _, err := s.SettleDue(tickCtx, s.now()); err != nil && ctx.Err() == nil {
					s.logger.Error().Err(err).Msg("Settlement pass failed")
				}
				cancel()
			}
		}
	}()
}

func (s *AuctionService) Shutdown(timeout time.Duration) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.Errorf("auction settler shutdown timed out after %v", timeout)
	}
}
