package services

import (
	"context"
	"encoding/binary"
	"math/big"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/naisu-labs/naisu/clients/evm"
	"github.com/naisu-labs/naisu/config"
	"github.com/naisu-labs/naisu/db"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// Buffer sizes for channels
	DefaultErrorChannelBuffer = 100
	DefaultLogsChannelBuffer  = 200

	// Timeout configurations
	DefaultDBTimeout  = 10 * time.Second
	DefaultRPCTimeout = 15 * time.Second

	// Ticker intervals
	HealthCheckInterval = 5 * time.Minute
	DebugLogInterval    = 2 * time.Minute

	// startup grace period during which a listener always reports healthy
	listenerGracePeriod = 30 * time.Second

	seenLogsCacheSize = 10_000
)

// HookListenerService watches one chain's hook contract for intent events.
// It subscribes to logs over WebSocket endpoints and polls FilterLogs otherwise.
type HookListenerService struct {
	client    evm.ChainClient
	db        db.Database
	sink      IntentSink
	publisher Publisher
	observer  StatusObserver

	hook         common.Address
	chainID      uint64
	chain        models.EvmChain
	pollInterval time.Duration
	polling      bool

	seen   *lru.Cache
	cursor uint64 // last block fully processed by the poller

	subs             map[string]ethereum.Subscription
	activeGoroutines int32
	errChannel       chan error
	mu               sync.Mutex
	logger           zerolog.Logger

	// Metrics tracking
	eventsProcessed   int64
	eventsSkipped     int64
	processingErrors  int64
	lastEventTime     time.Time
	lastHealthCheck   time.Time
	reconnectionCount int64
	startTime         time.Time

	lastPollingCheck time.Time
	pollingHealthy   bool

	// Goroutine cleanup management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	goroutineWg   sync.WaitGroup
	isShutdown    bool
	shutdownMu    sync.RWMutex
}

// NewHookListenerService creates a listener for the hook deployed on chain
func NewHookListenerService(
	client evm.ChainClient,
	database db.Database,
	chain config.ChainConfig,
	sink IntentSink,
	publisher Publisher,
	logger zerolog.Logger,
) (*HookListenerService, error) {
	if !chain.HasHook() {
		return nil, errors.Errorf("chain %d has no hook address", chain.ChainID)
	}

	seen, err := lru.New(seenLogsCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create seen logs cache")
	}

	if publisher == nil {
		publisher = nopPublisher{}
	}

	pollInterval := chain.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())

	return &HookListenerService{
		client:        client,
		db:            database,
		sink:          sink,
		publisher:     publisher,
		hook:          common.HexToAddress(chain.HookAddress),
		chainID:       chain.ChainID,
		chain:         chain.Chain,
		pollInterval:  pollInterval,
		polling:       !evm.IsWebSocketURL(chain.RPCURL),
		seen:          seen,
		subs:          make(map[string]ethereum.Subscription),
		errChannel:    make(chan error, DefaultErrorChannelBuffer),
		logger:        logger.With().Uint64(logging.FieldChain, chain.ChainID).Str(logging.FieldModule, "hook_listener").Logger(),
		startTime:     time.Now(),
		cleanupCtx:    cleanupCtx,
		cleanupCancel: cleanupCancel,
	}, nil
}

// SetObserver wires intent status metrics
func (s *HookListenerService) SetObserver(observer StatusObserver) {
	s.observer = observer
}

func (s *HookListenerService) ChainID() uint64 {
	return s.chainID
}

// ActiveGoroutines returns the current count of active goroutines
func (s *HookListenerService) ActiveGoroutines() int32 {
	return atomic.LoadInt32(&s.activeGoroutines)
}

// GetSubscriptionCount returns the number of active subscriptions
func (s *HookListenerService) GetSubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// IsHealthy checks if the listener is receiving events
func (s *HookListenerService) IsHealthy() bool {
	s.mu.Lock()
	s.lastHealthCheck = time.Now()
	pollingHealthy := s.pollingHealthy
	lastPollingCheck := s.lastPollingCheck
	s.mu.Unlock()

	if time.Since(s.startTime) < listenerGracePeriod {
		return true
	}

	if s.polling {
		stale := time.Since(lastPollingCheck) > 10*s.pollInterval
		return pollingHealthy && !stale
	}

	// error monitor + health monitor + subscription goroutine
	return s.ActiveGoroutines() >= 3 && s.GetSubscriptionCount() >= 1
}

// ServiceMetrics represents detailed metrics for the listener
type ServiceMetrics struct {
	ChainID            uint64    `json:"chain_id"`
	ActiveGoroutines   int32     `json:"active_goroutines"`
	SubscriptionCount  int       `json:"subscription_count"`
	EventsProcessed    int64     `json:"events_processed"`
	EventsSkipped      int64     `json:"events_skipped"`
	ProcessingErrors   int64     `json:"processing_errors"`
	LastEventTime      time.Time `json:"last_event_time"`
	LastHealthCheck    time.Time `json:"last_health_check"`
	ReconnectionCount  int64     `json:"reconnection_count"`
	TimeSinceLastEvent string    `json:"time_since_last_event"`
	IsHealthy          bool      `json:"is_healthy"`

	Polling          bool      `json:"polling"`
	PollingHealthy   bool      `json:"polling_healthy,omitempty"`
	LastPollingCheck time.Time `json:"last_polling_check,omitempty"`
}

// GetMetrics returns detailed metrics about the listener
func (s *HookListenerService) GetMetrics() ServiceMetrics {
	isHealthy := s.IsHealthy()

	s.mu.Lock()
	metrics := ServiceMetrics{
		ChainID:           s.chainID,
		SubscriptionCount: len(s.subs),
		LastEventTime:     s.lastEventTime,
		LastHealthCheck:   s.lastHealthCheck,
		Polling:           s.polling,
		PollingHealthy:    s.pollingHealthy,
		LastPollingCheck:  s.lastPollingCheck,
	}
	s.mu.Unlock()

	metrics.ActiveGoroutines = s.ActiveGoroutines()
	metrics.EventsProcessed = atomic.LoadInt64(&s.eventsProcessed)
	metrics.EventsSkipped = atomic.LoadInt64(&s.eventsSkipped)
	metrics.ProcessingErrors = atomic.LoadInt64(&s.processingErrors)
	metrics.ReconnectionCount = atomic.LoadInt64(&s.reconnectionCount)
	metrics.IsHealthy = isHealthy

	if metrics.LastEventTime.IsZero() {
		metrics.TimeSinceLastEvent = "never"
	} else {
		metrics.TimeSinceLastEvent = time.Since(metrics.LastEventTime).String()
	}

	return metrics
}

// Query returns the filter for hook events, optionally bounded to [from, to]
func (s *HookListenerService) Query(from, to uint64) ethereum.FilterQuery {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.hook},
		Topics:    [][]common.Hash{evm.HookTopics()},
	}

	if from > 0 {
		query.FromBlock = new(big.Int).SetUint64(from)
	}

	if to > 0 {
		query.ToBlock = new(big.Int).SetUint64(to)
	}

	return query
}

// StartListening starts the live listener goroutines. Call it after catch-up.
func (s *HookListenerService) StartListening(ctx context.Context) error {
	if s.IsShutdown() {
		return errors.New("cannot start listening: service is shutdown")
	}

	if active := s.ActiveGoroutines(); active > 0 {
		s.logger.Info().Int32("active_goroutines", active).Msg("Listener already running, skipping start")
		return nil
	}

	blockCtx, cancel := context.WithTimeout(ctx, DefaultRPCTimeout)
	latestBlock, err := s.client.BlockNumber(blockCtx)
	cancel()

	if err != nil {
		return errors.Wrap(err, "failed to get current block number")
	}

	if atomic.LoadUint64(&s.cursor) == 0 {
		atomic.StoreUint64(&s.cursor, latestBlock)
	}

	s.logger.Info().
		Bool("polling", s.polling).
		Uint64(logging.FieldBlock, latestBlock).
		Str("hook", s.hook.Hex()).
		Msg("Starting hook listener")

	s.startGoroutine("error-monitor", func() {
		s.monitorErrors(s.cleanupCtx)
	})

	if s.polling {
		s.startGoroutine("poller", func() {
			s.runPoller(s.cleanupCtx)
		})
		return nil
	}

	s.startGoroutine("subscription-reconnection", func() {
		s.startSubscriptionWithReconnection(s.cleanupCtx, latestBlock)
	})

	s.startGoroutine("health-monitor", func() {
		s.startHealthMonitor(s.cleanupCtx)
	})

	return nil
}

// SetCursor sets the last fully processed block, used by catch-up before live listening
func (s *HookListenerService) SetCursor(block uint64) {
	atomic.StoreUint64(&s.cursor, block)
}

func (s *HookListenerService) Cursor() uint64 {
	return atomic.LoadUint64(&s.cursor)
}

func (s *HookListenerService) monitorErrors(ctx context.Context) {
	for {
		select {
		case err := <-s.errChannel:
			s.logger.Error().Err(err).Msg("Error in hook listener goroutine")
		case <-ctx.Done():
			return
		}
	}
}

func (s *HookListenerService) runPoller(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.PollOnce(ctx)

			s.mu.Lock()
			s.pollingHealthy = err == nil
			s.lastPollingCheck = time.Now()
			s.mu.Unlock()

			if err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("Polling failed")
			}
		}
	}
}

// PollOnce processes the hook logs between the cursor and the chain head
func (s *HookListenerService) PollOnce(ctx context.Context) error {
	rpcCtx, cancel := context.WithTimeout(ctx, DefaultRPCTimeout)
	head, err := s.client.BlockNumber(rpcCtx)
	cancel()

	if err != nil {
		return errors.Wrap(err, "failed to get head")
	}

	from := s.Cursor() + 1
	if head < from {
		return nil
	}

	done, err := ProcessRange(ctx, s, from, head, DefaultMaxBlockRange)
	if done >= from {
		s.SetCursor(done)
	}

	return err
}

// startSubscriptionWithReconnection handles the subscription lifecycle with exponential backoff
func (s *HookListenerService) startSubscriptionWithReconnection(ctx context.Context, startBlock uint64) {
	const (
		maxRetries = 10
		baseDelay  = 1 * time.Second
		maxDelay   = 5 * time.Minute
	)

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<attempt) * baseDelay
			if delay > maxDelay {
				delay = maxDelay
			}

			atomic.AddInt64(&s.reconnectionCount, 1)

			s.logger.Info().
				Int("attempt", attempt+1).
				Int("max_retries", maxRetries).
				Dur("delay", delay).
				Msg("Retrying subscription attempt")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}

			// resume where the last subscription left off
			if cursor := s.Cursor(); cursor > startBlock {
				startBlock = cursor
			}
		}

		err := s.createAndRunSubscription(ctx, startBlock)
		if err == nil || ctx.Err() != nil {
			return
		}

		s.logger.Error().
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Err(err).
			Msg("Subscription failed")
	}

	s.errChannel <- errors.Errorf("failed to establish stable subscription after %d attempts", maxRetries)
	s.logger.Error().Int("max_attempts", maxRetries).Msg("CRITICAL: Unable to establish stable subscription")
}

func (s *HookListenerService) createAndRunSubscription(ctx context.Context, startBlock uint64) error {
	subID := s.hook.Hex()
	query := s.Query(startBlock, 0)

	logs := make(chan types.Log, DefaultLogsChannelBuffer)

	sub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to logs")
	}

	s.mu.Lock()
	s.subs[subID] = sub
	s.mu.Unlock()

	s.logger.Info().Str("contract", subID).Msg("Successfully subscribed to hook events")

	defer func() {
		s.mu.Lock()
		if stored, ok := s.subs[subID]; ok && stored == sub {
			delete(s.subs, subID)
		}
		s.mu.Unlock()

		sub.Unsubscribe()
	}()

	debugTicker := time.NewTicker(DebugLogInterval)
	defer debugTicker.Stop()

	for {
		select {
		case err := <-sub.Err():
			if err != nil {
				return errors.Wrap(err, "subscription error")
			}
			return errors.New("subscription closed")
		case vLog := <-logs:
			if err := s.ProcessLog(ctx, vLog); err != nil {
				s.logger.Error().Err(err).Str("tx_hash", vLog.TxHash.Hex()).Msg("Failed to process hook log")
				continue
			}

			if vLog.BlockNumber > s.Cursor() {
				s.SetCursor(vLog.BlockNumber)
			}
		case <-debugTicker.C:
			s.logger.Debug().
				Int64("events_processed", atomic.LoadInt64(&s.eventsProcessed)).
				Uint64(logging.FieldBlock, s.Cursor()).
				Msg("Subscription alive")
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *HookListenerService) startHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(HealthCheckInterval)
	defer ticker.Stop()

	failures := 0

	for {
		select {
		case <-ticker.C:
			if s.IsHealthy() {
				if failures > 0 {
					s.logger.Info().Msg("Listener health restored")
				}
				failures = 0
				continue
			}

			failures++
			s.logger.Warn().
				Int("consecutive_failures", failures).
				Int32("active_goroutines", s.ActiveGoroutines()).
				Int("subscriptions", s.GetSubscriptionCount()).
				Msg("Health check failed")
		case <-ctx.Done():
			return
		}
	}
}

// ProcessLog handles one hook log. Logs already seen (re-org replays, catch-up overlap) are skipped.
func (s *HookListenerService) ProcessLog(ctx context.Context, vLog types.Log) error {
	if vLog.Removed || len(vLog.Topics) == 0 {
		return nil
	}

	key := logKey(vLog)
	if s.seen.Contains(key) {
		atomic.AddInt64(&s.eventsSkipped, 1)
		return nil
	}

	var err error
	switch vLog.Topics[0] {
	case evm.HookABI.Events[evm.EventIntentCreated].ID:
		err = s.handleIntentCreated(ctx, vLog)
	case evm.HookABI.Events[evm.EventIntentBridgeInitiated].ID:
		err = s.handleBridgeInitiated(ctx, vLog)
	default:
		atomic.AddInt64(&s.eventsSkipped, 1)
		return nil
	}

	if err != nil {
		atomic.AddInt64(&s.processingErrors, 1)
		return err
	}

	s.seen.Add(key, struct{}{})
	atomic.AddInt64(&s.eventsProcessed, 1)

	s.mu.Lock()
	s.lastEventTime = time.Now()
	s.mu.Unlock()

	dbCtx, cancel := context.WithTimeout(ctx, DefaultDBTimeout)
	defer cancel()

	if err := s.db.UpdateLastProcessedBlock(dbCtx, s.chainID, vLog.BlockNumber); err != nil {
		s.logger.Warn().Err(err).Uint64(logging.FieldBlock, vLog.BlockNumber).Msg("Failed to persist last processed block")
	}

	return nil
}

func (s *HookListenerService) handleIntentCreated(ctx context.Context, vLog types.Log) error {
	event, err := evm.ParseIntentCreated(vLog, s.chainID)
	if err != nil {
		return err
	}

	intent := event.ToIntent(s.chain)

	dbCtx, cancel := context.WithTimeout(ctx, DefaultDBTimeout)
	err = s.db.CreateIntent(dbCtx, intent)
	cancel()

	switch {
	case errors.Is(err, db.ErrIntentExists):
		atomic.AddInt64(&s.eventsSkipped, 1)
		s.logger.Debug().Str(logging.FieldIntent, intent.ID).Msg("Intent already stored, skipping")
		return nil
	case err != nil:
		return errors.Wrap(err, "failed to store intent")
	}

	s.logger.Info().
		Str(logging.FieldIntent, intent.ID).
		Uint64(logging.FieldBlock, vLog.BlockNumber).
		Str("usdc_amount", intent.USDCAmount).
		Msg("Intent created on-chain")

	s.publish(intent)

	if s.sink != nil {
		if err := s.sink.OnIntentCreated(ctx, intent); err != nil {
			// the intent is stored, a failed hand-off must not replay the log
			s.logger.Error().Err(err).Str(logging.FieldIntent, intent.ID).Msg("Failed to hand intent to sink")
		}
	}

	return nil
}

func (s *HookListenerService) handleBridgeInitiated(ctx context.Context, vLog types.Log) error {
	event, err := evm.ParseIntentBridgeInitiated(vLog)
	if err != nil {
		return err
	}

	dbCtx, cancel := context.WithTimeout(ctx, DefaultDBTimeout)
	defer cancel()

	intent, _, err := updateIntent(dbCtx, s.db, event.IntentID, func(intent *models.Intent) error {
		intent.BridgeTxHash = event.LifiTransactionID

		if !intent.Status.CanTransition(intent.Direction, models.IntentStatusBridging) {
			s.logger.Debug().
				Str(logging.FieldIntent, intent.ID).
				Str("status", string(intent.Status)).
				Msg("Bridge initiated for an intent past bridging, recording tx only")
			return nil
		}

		return intent.Transition(models.IntentStatusBridging)
	})
	if err != nil {
		return errors.Wrapf(err, "bridge initiated for intent %s", event.IntentID)
	}

	s.publish(intent)

	return nil
}

func (s *HookListenerService) publish(intent *models.Intent) {
	s.publisher.Publish(intent.ToUpdate())

	if s.observer != nil {
		s.observer.ObserveIntentStatus(intent.Direction, intent.Status)
	}
}

// logKey identifies a log by transaction and position
func logKey(vLog types.Log) uint64 {
	var index [8]byte
	binary.BigEndian.PutUint64(index[:], uint64(vLog.Index))

	d := xxhash.New()
	_, _ = d.Write(vLog.TxHash.Bytes())
	_, _ = d.Write(index[:])

	return d.Sum64()
}

// UnsubscribeAll unsubscribes from all active subscriptions
func (s *HookListenerService) UnsubscribeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sub := range s.subs {
		sub.Unsubscribe()
		delete(s.subs, id)
	}
}

func (s *HookListenerService) drainErrorChannel() {
	for {
		select {
		case <-s.errChannel:
		default:
			return
		}
	}
}

// Shutdown gracefully shuts down the listener and waits for all goroutines to complete
func (s *HookListenerService) Shutdown(timeout time.Duration) error {
	s.shutdownMu.Lock()
	if s.isShutdown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down hook listener...")

	s.cleanupCancel()
	s.UnsubscribeAll()

	done := make(chan struct{})
	go func() {
		s.goroutineWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.drainErrorChannel()
		s.logger.Info().Msg("Hook listener shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		s.logger.Error().Dur("timeout", timeout).Msg("Hook listener shutdown timed out")
		return errors.Errorf("shutdown timed out after %v", timeout)
	}
}

// IsShutdown returns whether the service is in shutdown state
func (s *HookListenerService) IsShutdown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShutdown
}

// startGoroutine starts a goroutine with cleanup tracking and panic recovery
func (s *HookListenerService) startGoroutine(name string, fn func()) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.logger.Debug().Str("goroutine_name", name).Msg("Cannot start goroutine: service is shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	s.goroutineWg.Add(1)
	atomic.AddInt32(&s.activeGoroutines, 1)

	go func() {
		defer func() {
			s.goroutineWg.Done()
			atomic.AddInt32(&s.activeGoroutines, -1)

			if r := recover(); r != nil {
				select {
				case s.errChannel <- errors.Errorf("panic in goroutine %s: %v", name, r):
				default:
				}

				s.logger.Error().
					Str("goroutine_name", name).
					Any("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("CRITICAL: Panic in goroutine")
			}
		}()

		fn()
	}()
}
