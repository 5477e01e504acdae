package services

import (
	"context"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/naisu-labs/naisu/clients/defillama"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const DefaultAPYCacheTTL = 5 * time.Minute

// YieldSource looks up live pool data
type YieldSource interface {
	FindPool(ctx context.Context, project, chain, symbol string) (*defillama.Pool, error)
}

// fallbackAPY is served when the yield source is unavailable
var fallbackAPY = map[models.YieldStrategy]decimal.Decimal{
	models.StrategyScallopUSDC: decimal.RequireFromString("8.5"),
	models.StrategyNaviUSDC:    decimal.RequireFromString("7.2"),
	models.StrategyScallopSUI:  decimal.RequireFromString("4.1"),
	models.StrategyNaviSUI:     decimal.RequireFromString("3.8"),
}

var strategyProjects = map[string]string{
	models.ProtocolScallop: defillama.ProjectScallop,
	models.ProtocolNavi:    defillama.ProjectNavi,
}

// StrategyService serves the yield strategies with live APY and TVL
type StrategyService struct {
	source YieldSource
	cache  *ristretto.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewStrategyService(source YieldSource, ttl time.Duration, logger zerolog.Logger) (*StrategyService, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create apy cache")
	}

	if ttl <= 0 {
		ttl = DefaultAPYCacheTTL
	}

	return &StrategyService{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str(logging.FieldModule, "strategies").Logger(),
	}, nil
}

// List returns every built-in strategy in id order
func (s *StrategyService) List(ctx context.Context) []models.StrategyInfo {
	out := make([]models.StrategyInfo, 0, len(models.KnownStrategies))
	for _, strategy := range models.KnownStrategies {
		out = append(out, s.Get(ctx, strategy))
	}

	return out
}

// Get returns one strategy. Custom ids are reported as disabled with no market data.
func (s *StrategyService) Get(ctx context.Context, strategy models.YieldStrategy) models.StrategyInfo {
	if strategy.IsCustom() {
		return models.StrategyInfo{Strategy: strategy}
	}

	key := "strategy:" + strconv.Itoa(int(strategy))
	if cached, ok := s.cache.Get(key); ok {
		if info, ok := cached.(models.StrategyInfo); ok {
			return info
		}
	}

	info, err := s.fetch(ctx, strategy)
	if err != nil {
		s.logger.Warn().Err(err).Uint8("strategy_id", strategy.ID()).Msg("Using fallback APY")

		// fallbacks are not cached so the next request retries the source
		return models.StrategyInfo{Strategy: strategy, APY: fallbackAPY[strategy], Enabled: true}
	}

	s.cache.SetWithTTL(key, info, 1, s.ttl)

	return info
}

// Best returns the enabled strategy with the highest APY
func (s *StrategyService) Best(ctx context.Context) models.StrategyInfo {
	var best models.StrategyInfo

	for _, info := range s.List(ctx) {
		if info.Enabled && (best.Strategy == 0 || info.APY.GreaterThan(best.APY)) {
			best = info
		}
	}

	return best
}

func (s *StrategyService) fetch(ctx context.Context, strategy models.YieldStrategy) (models.StrategyInfo, error) {
	if s.source == nil {
		return models.StrategyInfo{}, errors.New("no yield source configured")
	}

	project := strategyProjects[strategy.Protocol()]

	pool, err := s.source.FindPool(ctx, project, defillama.ChainSui, strategy.Asset())
	if err != nil {
		return models.StrategyInfo{}, err
	}

	return models.StrategyInfo{
		Strategy: strategy,
		APY:      pool.APY,
		TVL:      pool.TVLUsd,
		Enabled:  true,
	}, nil
}
