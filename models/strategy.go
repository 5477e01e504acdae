package models

import (
	"github.com/shopspring/decimal"
)

// YieldStrategy identifies a yield destination on Sui. Ids above 4 are custom strategies.
type YieldStrategy uint8

const (
	StrategyScallopUSDC YieldStrategy = 1
	StrategyScallopSUI  YieldStrategy = 2
	StrategyNaviUSDC    YieldStrategy = 3
	StrategyNaviSUI     YieldStrategy = 4
)

const (
	ProtocolScallop = "Scallop"
	ProtocolNavi    = "Navi"
	ProtocolCustom  = "Custom"

	AssetUSDC = "USDC"
	AssetSUI  = "SUI"
)

// KnownStrategies lists the built-in strategies in id order
var KnownStrategies = []YieldStrategy{
	StrategyScallopUSDC,
	StrategyScallopSUI,
	StrategyNaviUSDC,
	StrategyNaviSUI,
}

func (s YieldStrategy) ID() uint8 {
	return uint8(s)
}

func (s YieldStrategy) IsCustom() bool {
	return s < StrategyScallopUSDC || s > StrategyNaviSUI
}

func (s YieldStrategy) Name() string {
	switch s {
	case StrategyScallopUSDC:
		return "Scallop USDC Lending"
	case StrategyScallopSUI:
		return "Scallop SUI Lending"
	case StrategyNaviUSDC:
		return "Navi USDC Lending"
	case StrategyNaviSUI:
		return "Navi SUI Lending"
	default:
		return "Custom Strategy"
	}
}

func (s YieldStrategy) Protocol() string {
	switch s {
	case StrategyScallopUSDC, StrategyScallopSUI:
		return ProtocolScallop
	case StrategyNaviUSDC, StrategyNaviSUI:
		return ProtocolNavi
	default:
		return ProtocolCustom
	}
}

func (s YieldStrategy) Asset() string {
	switch s {
	case StrategyScallopUSDC, StrategyNaviUSDC:
		return AssetUSDC
	case StrategyScallopSUI, StrategyNaviSUI:
		return AssetSUI
	default:
		return "Unknown"
	}
}

// RequiresSuiSwap is true when bridged USDC must be swapped to SUI before the deposit
func (s YieldStrategy) RequiresSuiSwap() bool {
	return s == StrategyScallopSUI || s == StrategyNaviSUI
}

// StrategyInfo is a strategy enriched with live market data
type StrategyInfo struct {
	Strategy YieldStrategy
	APY      decimal.Decimal
	TVL      decimal.Decimal
	Enabled  bool
}

// APYBps returns the APY in basis points (8.5% => 850)
func (s StrategyInfo) APYBps() int64 {
	return s.APY.Mul(decimal.NewFromInt(100)).IntPart()
}

// StrategyResponse represents the response format for a strategy
type StrategyResponse struct {
	ID       uint8  `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Asset    string `json:"asset"`
	APY      string `json:"apy"`
	TVL      string `json:"tvl"`
	Enabled  bool   `json:"enabled"`
}

func (s StrategyInfo) ToResponse() *StrategyResponse {
	return &StrategyResponse{
		ID:       s.Strategy.ID(),
		Name:     s.Strategy.Name(),
		Protocol: s.Strategy.Protocol(),
		Asset:    s.Strategy.Asset(),
		APY:      s.APY.StringFixed(2),
		TVL:      s.TVL.StringFixed(0),
		Enabled:  s.Enabled,
	}
}
