package services

import (
	"context"
	"time"

	"github.com/naisu-labs/naisu/db"
	"github.com/naisu-labs/naisu/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxBlockRange keeps FilterLogs under common RPC provider limits
	DefaultMaxBlockRange uint64 = 10_000

	FilterLogsTimeout        = 30 * time.Second
	BlockRangeProcessTimeout = 2 * time.Minute
)

// ProcessRange replays the hook logs of [from, to] in chunks of at most rangeSize blocks and
// persists progress after each chunk. It returns the last block fully processed, which is
// from-1 when nothing completed.
func ProcessRange(
	ctx context.Context,
	listener *HookListenerService,
	from, to, rangeSize uint64,
) (uint64, error) {
	if rangeSize == 0 {
		rangeSize = DefaultMaxBlockRange
	}

	done := from - 1

	for chunkStart := from; chunkStart <= to; chunkStart += rangeSize {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		chunkEnd := chunkStart + rangeSize - 1
		if chunkEnd > to {
			chunkEnd = to
		}

		if err := processChunk(ctx, listener, chunkStart, chunkEnd); err != nil {
			return done, err
		}

		done = chunkEnd

		dbCtx, cancel := context.WithTimeout(ctx, DefaultDBTimeout)
		err := listener.db.UpdateLastProcessedBlock(dbCtx, listener.chainID, chunkEnd)
		cancel()

		if err != nil {
			listener.logger.Warn().Err(err).Uint64(logging.FieldBlock, chunkEnd).Msg("Failed to persist progress")
		}
	}

	return done, nil
}

func processChunk(ctx context.Context, listener *HookListenerService, from, to uint64) error {
	chunkCtx, cancel := context.WithTimeout(ctx, BlockRangeProcessTimeout)
	defer cancel()

	filterCtx, filterCancel := context.WithTimeout(chunkCtx, FilterLogsTimeout)
	logs, err := listener.client.FilterLogs(filterCtx, listener.Query(from, to))
	filterCancel()

	if err != nil {
		return errors.Wrapf(err, "failed to fetch hook logs for range %d-%d", from, to)
	}

	listener.logger.Debug().
		Int("logs", len(logs)).
		Uint64("from_block", from).
		Uint64("to_block", to).
		Msg("Processing hook logs")

	for _, vLog := range logs {
		if err := listener.ProcessLog(chunkCtx, vLog); err != nil {
			return errors.Wrapf(err, "failed to process log %s:%d", vLog.TxHash.Hex(), vLog.Index)
		}
	}

	return nil
}

// CatchupService replays the hook events missed while the API was down
type CatchupService struct {
	db        db.Database
	rangeSize uint64
	logger    zerolog.Logger
}

func NewCatchupService(database db.Database, logger zerolog.Logger) *CatchupService {
	return &CatchupService{
		db:        database,
		rangeSize: DefaultMaxBlockRange,
		logger:    logger.With().Str(logging.FieldModule, "catchup").Logger(),
	}
}

// Catchup replays [last_processed+1, head] for one listener and leaves its cursor at head.
// A chain seen for the first time starts at head.
func (s *CatchupService) Catchup(ctx context.Context, listener *HookListenerService) error {
	logger := s.logger.With().Uint64(logging.FieldChain, listener.chainID).Logger()

	rpcCtx, cancel := context.WithTimeout(ctx, DefaultRPCTimeout)
	head, err := listener.client.BlockNumber(rpcCtx)
	cancel()

	if err != nil {
		return errors.Wrap(err, "failed to get head")
	}

	dbCtx, cancel := context.WithTimeout(ctx, DefaultDBTimeout)
	last, err := s.db.GetLastProcessedBlock(dbCtx, listener.chainID)
	cancel()

	if err != nil {
		return errors.Wrap(err, "failed to get last processed block")
	}

	if last == 0 {
		logger.Info().Uint64(logging.FieldBlock, head).Msg("No progress stored, starting at head")
		listener.SetCursor(head)

		dbCtx, cancel := context.WithTimeout(ctx, DefaultDBTimeout)
		defer cancel()

		return s.db.UpdateLastProcessedBlock(dbCtx, listener.chainID, head)
	}

	if last >= head {
		listener.SetCursor(last)
		return nil
	}

	start := time.Now()
	logger.Info().
		Uint64("from_block", last+1).
		Uint64("to_block", head).
		Msg("Catching up on hook events")

	done, err := ProcessRange(ctx, listener, last+1, head, s.rangeSize)
	listener.SetCursor(done)

	if err != nil {
		return err
	}

	logger.Info().
		Uint64(logging.FieldBlock, done).
		Dur("took", time.Since(start)).
		Msg("Catch-up completed")

	return nil
}

// Run catches up every listener concurrently
func (s *CatchupService) Run(ctx context.Context, listeners []*HookListenerService) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, listener := range listeners {
		g.Go(func() error {
			return errors.Wrapf(s.Catchup(ctx, listener), "catch-up for chain %d", listener.chainID)
		})
	}

	return g.Wait()
}
