package services

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/naisu-labs/naisu/clients/cctp"
	"github.com/naisu-labs/naisu/clients/sui"
	"github.com/naisu-labs/naisu/db"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultOrchestratorWorkers = 4
	DefaultResumeInterval      = time.Minute
	defaultQueueSize           = 1024

	mockNoncePrefix = "mock_nonce_"
)

// Bridge is the CCTP surface the orchestrator drives
type Bridge interface {
	BuildDepositForBurnParams(amount uint64, destDomain uint32, destAddress string) cctp.DepositForBurnParams
	PollAttestation(ctx context.Context, nonce string, attempts uint32, interval time.Duration) (*cctp.Attestation, error)
	BuildReceiveMessageParams(att *cctp.Attestation, dest cctp.DestChain) cctp.ReceiveMessageParams
}

var _ Bridge = (*cctp.Client)(nil)

type OrchestratorConfig struct {
	Workers            int
	QueueSize          int
	AttestationPolling bool
	PollAttempts       uint32
	PollInterval       time.Duration
	ResumeInterval     time.Duration
	Packages           sui.Packages
}

// Orchestrator moves intents through their cross-chain flow on a pool of workers
type Orchestrator struct {
	db        db.Database
	bridge    Bridge
	publisher Publisher
	metrics   *MetricsService
	cfg       OrchestratorConfig
	logger    zerolog.Logger

	queue chan string
	// queued or running
	pending map[string]struct{}
	closed  bool
	mu      sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrchestrator(
	database db.Database,
	bridge Bridge,
	publisher Publisher,
	metrics *MetricsService,
	cfg OrchestratorConfig,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultOrchestratorWorkers
	}

	if cfg.QueueSize < 1 {
		cfg.QueueSize = defaultQueueSize
	}

	if cfg.ResumeInterval <= 0 {
		cfg.ResumeInterval = DefaultResumeInterval
	}

	if publisher == nil {
		publisher = nopPublisher{}
	}

	return &Orchestrator{
		db:        database,
		bridge:    bridge,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.With().Str(logging.FieldModule, "orchestrator").Logger(),
		queue:     make(chan string, cfg.QueueSize),
		pending:   make(map[string]struct{}),
	}
}

// Start launches the workers and the periodic resume sweep. They stop on Shutdown or when ctx
// is done.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}

	o.wg.Add(1)
	go o.sweep(ctx)

	o.logger.Info().Int("workers", o.cfg.Workers).Msg("Orchestrator started")
}

// Enqueue schedules an intent. Intents already queued or running are not queued twice.
func (o *Orchestrator) Enqueue(intentID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}

	if _, ok := o.pending[intentID]; ok {
		return false
	}

	select {
	case o.queue <- intentID:
		o.pending[intentID] = struct{}{}
		return true
	default:
		o.logger.Warn().Str(logging.FieldIntent, intentID).Msg("Orchestrator queue is full, dropping intent")
		return false
	}
}

// Shutdown stops accepting intents and waits for the workers to finish
func (o *Orchestrator) Shutdown(timeout time.Duration) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info().Msg("Orchestrator shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		return errors.Errorf("orchestrator shutdown timed out after %v", timeout)
	}
}

func (o *Orchestrator) worker(ctx context.Context, n int) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case intentID, ok := <-o.queue:
			if !ok {
				return
			}

			o.run(ctx, n, intentID)

			o.mu.Lock()
			delete(o.pending, intentID)
			o.mu.Unlock()
		}
	}
}

// Resume enqueues every stored intent that is still in flight. It picks up intents left behind
// by a restart or dropped by a full queue. EVM -> Sui intents are skipped while the swap is
// pending or their sealed-bid auction is open, the settler enqueues those.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	intents, err := o.db.ListActiveIntents(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list active intents")
	}

	queued := 0

	for _, intent := range intents {
		if intent.Direction == models.DirectionEvmToSui {
			if intent.Status == models.IntentStatusPending || o.auctionOpen(ctx, intent.ID) {
				continue
			}
		}

		if o.Enqueue(intent.ID) {
			queued++
		}
	}

	if queued > 0 {
		o.logger.Info().Int("queued", queued).Int("active", len(intents)).Msg("Resumed in-flight intents")
	}

	return queued, nil
}

func (o *Orchestrator) auctionOpen(ctx context.Context, intentID string) bool {
	auction, err := o.db.GetAuctionByIntent(ctx, intentID)
	switch {
	case errors.Is(err, models.ErrAuctionNotFound):
		return false
	case err != nil:
		// retried on the next sweep
		o.logger.Warn().Err(err).Str(logging.FieldIntent, intentID).Msg("Failed to load auction for intent")
		return true
	}

	return auction.IsOpen()
}

func (o *Orchestrator) sweep(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.ResumeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Resume(ctx); err != nil && ctx.Err() == nil {
				o.logger.Error().Err(err).Msg("Resume sweep failed")
			}
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, n int, intentID string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str(logging.FieldIntent, intentID).
				Any("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("CRITICAL: Panic while processing intent")
		}
	}()

	if err := o.Process(ctx, intentID); err != nil && ctx.Err() == nil {
		o.logger.Error().Err(err).Int("worker", n).Str(logging.FieldIntent, intentID).Msg("Intent processing failed")
	}
}

// Process loads an intent and runs its flow. Failures mark the intent failed.
func (o *Orchestrator) Process(ctx context.Context, intentID string) error {
	intent, err := o.db.GetIntent(ctx, intentID)
	if err != nil {
		return errors.Wrap(err, "failed to load intent")
	}

	if intent.Status.IsTerminal() {
		return nil
	}

	switch intent.Direction {
	case models.DirectionEvmToSui:
		err = o.ProcessEvmToSui(ctx, intent)
	case models.DirectionSuiToEvm:
		err = o.ProcessSuiToEvm(ctx, intent)
	default:
		err = errors.Errorf("unknown direction %q", intent.Direction)
	}

	if err == nil || ctx.Err() != nil {
		return err
	}

	o.fail(context.WithoutCancel(ctx), intent.ID, err)

	return err
}

// ProcessEvmToSui runs swap_completed -> bridging -> bridge_completed -> deposited -> completed.
// Each step is skipped when the intent is already past it, so a restarted intent resumes.
// Every step re-reads the stored intent, so fields written meanwhile by the hook listener or
// the auction service are kept.
func (o *Orchestrator) ProcessEvmToSui(ctx context.Context, intent *models.Intent) error {
	logger := o.intentLogger(intent)

	if intent.Strategy == nil {
		return models.ErrStrategyRequired
	}

	amount, err := usdcUnits(intent)
	if err != nil {
		return err
	}

	// the EVM swap is reported by the hook
	if intent.Status == models.IntentStatusPending {
		logger.Debug().Msg("Waiting for the EVM swap")
		return nil
	}

	if intent.Status == models.IntentStatusSwapCompleted {
		params := o.bridge.BuildDepositForBurnParams(amount, cctp.DomainSui, intent.DestAddress)

		logger.Info().
			Uint64("amount", params.Amount).
			Uint32("dest_domain", params.DestinationDomain).
			Msg("depositForBurn params ready")

		if err := o.advance(ctx, intent, models.IntentStatusBridging, assignNonce); err != nil {
			return err
		}
	}

	if intent.Status == models.IntentStatusBridging {
		if err := o.awaitAttestation(ctx, intent, cctp.DestSui); err != nil {
			return err
		}

		if err := o.advance(ctx, intent, models.IntentStatusBridgeCompleted); err != nil {
			return err
		}
	}

	if intent.Status == models.IntentStatusBridgeCompleted {
		plan, err := sui.BuildDepositPlan(*intent.Strategy, amount, intent.DestAddress, o.cfg.Packages)
		switch {
		case errors.Is(err, sui.ErrCustomStrategy):
			logger.Info().Msg("Custom strategy, deposit is left to the solver")
		case errors.Is(err, sui.ErrPackageNotConfigured):
			logger.Warn().Err(err).Msg("Deposit plan skipped")
		case err != nil:
			return errors.Wrap(err, "failed to build deposit plan")
		default:
			logger.Info().Int("calls", len(plan.Calls)).Msg("Deposit PTB ready")
		}

		if err := o.advance(ctx, intent, models.IntentStatusDeposited); err != nil {
			return err
		}
	}

	if intent.Status == models.IntentStatusDeposited {
		if err := o.advance(ctx, intent, models.IntentStatusCompleted); err != nil {
			return err
		}
	}

	if intent.Status == models.IntentStatusCompleted {
		logger.Info().Msg("EVM to Sui intent completed")
	}

	return nil
}

// ProcessSuiToEvm runs pending -> bridging -> bridge_completed -> completed
func (o *Orchestrator) ProcessSuiToEvm(ctx context.Context, intent *models.Intent) error {
	logger := o.intentLogger(intent)

	amount, err := usdcUnits(intent)
	if err != nil {
		return err
	}

	if intent.Status == models.IntentStatusPending {
		params := o.bridge.BuildDepositForBurnParams(amount, cctp.DomainBase, intent.DestAddress)

		logger.Info().
			Uint64("amount", params.Amount).
			Uint32("dest_domain", params.DestinationDomain).
			Msg("depositForBurn params ready")

		if err := o.advance(ctx, intent, models.IntentStatusBridging, assignNonce); err != nil {
			return err
		}
	}

	if intent.Status == models.IntentStatusBridging {
		if err := o.awaitAttestation(ctx, intent, cctp.DestBaseSepolia); err != nil {
			return err
		}

		if err := o.advance(ctx, intent, models.IntentStatusBridgeCompleted); err != nil {
			return err
		}
	}

	if intent.Status == models.IntentStatusBridgeCompleted || intent.Status == models.IntentStatusSwapCompleted {
		if err := o.advance(ctx, intent, models.IntentStatusCompleted); err != nil {
			return err
		}
	}

	if intent.Status == models.IntentStatusCompleted {
		logger.Info().Msg("Sui to EVM intent completed")
	}

	return nil
}

// assignNonce keeps a nonce reported by the frontend and falls back to a mock one
func assignNonce(intent *models.Intent) {
	if intent.BridgeNonce == "" {
		intent.BridgeNonce = mockNoncePrefix + intent.ID
	}
}

// awaitAttestation polls Circle when enabled. Mock nonces are never attested.
func (o *Orchestrator) awaitAttestation(ctx context.Context, intent *models.Intent, dest cctp.DestChain) error {
	if !o.cfg.AttestationPolling || strings.HasPrefix(intent.BridgeNonce, mockNoncePrefix) {
		return nil
	}

	start := time.Now()

	att, err := o.bridge.PollAttestation(ctx, intent.BridgeNonce, o.cfg.PollAttempts, o.cfg.PollInterval)
	if err != nil {
		return errors.Wrap(err, "attestation")
	}

	if o.metrics != nil {
		o.metrics.ObserveAttestationWait(time.Since(start))
	}

	params := o.bridge.BuildReceiveMessageParams(att, dest)

	logger := o.intentLogger(intent)
	logger.Info().
		Str("transmitter", params.MessageTransmitter).
		Dur("waited", time.Since(start)).
		Msg("Attestation received, receiveMessage params ready")

	return nil
}

// advance moves the stored intent to next and refreshes intent from the stored row. prepare runs
// on the fresh copy before the transition. An intent another writer already moved on is left as
// stored and the flow continues from there.
func (o *Orchestrator) advance(
	ctx context.Context,
	intent *models.Intent,
	next models.IntentStatus,
	prepare ...func(*models.Intent),
) error {
	from := intent.Status

	stored, written, err := updateIntent(ctx, o.db, intent.ID, func(stored *models.Intent) error {
		if stored.Status != from {
			return errUnchanged
		}

		for _, fn := range prepare {
			fn(stored)
		}

		return stored.Transition(next)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to persist %s", next)
	}

	if !written {
		logger := o.intentLogger(stored)
		logger.Debug().
			Str("expected", string(from)).
			Str("status", string(stored.Status)).
			Msg("Intent moved concurrently, continuing from the stored status")
	}

	*intent = *stored

	if written {
		o.published(intent)
	}

	return nil
}

// fail marks the stored intent failed unless it already reached a terminal status
func (o *Orchestrator) fail(ctx context.Context, intentID string, reason error) {
	stored, written, err := updateIntent(ctx, o.db, intentID, func(stored *models.Intent) error {
		if stored.Status.IsTerminal() {
			return errUnchanged
		}

		stored.Fail(reason)

		return nil
	})
	if err != nil {
		o.logger.Error().Err(err).Str(logging.FieldIntent, intentID).Msg("Failed to persist failed intent")
		return
	}

	if written {
		o.published(stored)
	}
}

func (o *Orchestrator) published(intent *models.Intent) {
	o.publisher.Publish(intent.ToUpdate())

	if o.metrics != nil {
		o.metrics.ObserveIntentStatus(intent.Direction, intent.Status)
	}

	logger := o.intentLogger(intent)
	logger.Debug().Str("status", string(intent.Status)).Msg("Intent advanced")
}

func (o *Orchestrator) intentLogger(intent *models.Intent) zerolog.Logger {
	return o.logger.With().
		Str(logging.FieldIntent, intent.ID).
		Str(logging.FieldDirection, string(intent.Direction)).
		Logger()
}

// usdcUnits returns the intent's USDC amount in 6-decimal units. API-created intents carry
// their USDC amount as input until the hook reports the swap.
func usdcUnits(intent *models.Intent) (uint64, error) {
	raw := intent.USDCAmount
	if raw == "" {
		raw = intent.InputAmount
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, errors.Wrapf(models.ErrInvalidAmount, "%q", raw)
	}

	units, err := cctp.ParseUSDCAmount(amount)
	if err != nil {
		return 0, errors.Wrap(models.ErrInvalidAmount, err.Error())
	}

	if units == 0 {
		return 0, errors.Wrap(models.ErrInvalidAmount, "usdc amount is zero")
	}

	return units, nil
}
