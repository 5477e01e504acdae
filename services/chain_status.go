package services

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	ChainStatusHealthy   = "healthy"
	ChainStatusUnhealthy = "unhealthy"

	DefaultChainProbeTimeout = 5 * time.Second
)

// BlockHeightFunc returns a chain's latest height
type BlockHeightFunc func(ctx context.Context) (uint64, error)

// ChainStatusService probes every configured chain concurrently
type ChainStatusService struct {
	probes  map[string]BlockHeightFunc
	timeout time.Duration
	logger  zerolog.Logger
}

func NewChainStatusService(logger zerolog.Logger) *ChainStatusService {
	return &ChainStatusService{
		probes:  make(map[string]BlockHeightFunc),
		timeout: DefaultChainProbeTimeout,
		logger:  logger.With().Str(logging.FieldModule, "chain_status").Logger(),
	}
}

// AddEvmChain registers an EVM chain probed through eth_blockNumber
func (s *ChainStatusService) AddEvmChain(chainID uint64, client interface {
	BlockNumber(ctx context.Context) (uint64, error)
}) {
	s.probes[strconv.FormatUint(chainID, 10)] = client.BlockNumber
}

// AddProbe registers an arbitrary chain, such as Sui probed through its latest checkpoint
func (s *ChainStatusService) AddProbe(id string, probe BlockHeightFunc) {
	s.probes[id] = probe
}

// Status probes every chain. A failing chain is reported unhealthy and never fails the call.
func (s *ChainStatusService) Status(ctx context.Context) []models.ChainStatus {
	ids := make([]string, 0, len(s.probes))
	for id := range s.probes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.ChainStatus, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			out[i] = s.probe(ctx, id, s.probes[id])
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *ChainStatusService) probe(ctx context.Context, id string, fn BlockHeightFunc) models.ChainStatus {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	height, err := fn(probeCtx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		s.logger.Warn().Err(err).Str(logging.FieldChain, id).Msg("Chain probe failed")

		return models.ChainStatus{
			ChainID: id,
			Status:  ChainStatusUnhealthy,
			Error:   err.Error(),
		}
	}

	return models.ChainStatus{
		ChainID:     id,
		Status:      ChainStatusHealthy,
		BlockHeight: &height,
		LatencyMS:   &latency,
	}
}
