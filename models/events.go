package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// IntentCreatedEvent is emitted by the Uniswap V4 hook once the user's swap to USDC is done
type IntentCreatedEvent struct {
	IntentID       string         `json:"intentId"`
	User           common.Address `json:"user"`
	SuiDestination common.Hash    `json:"suiDestination"`
	InputToken     common.Address `json:"inputToken"`
	InputAmount    *big.Int       `json:"inputAmount"`
	USDCAmount     *big.Int       `json:"usdcAmount"`
	StrategyID     uint8          `json:"strategyId"`
	Timestamp      *big.Int       `json:"timestamp"`
	ChainID        uint64         `json:"chainId"`
	BlockNumber    uint64         `json:"blockNumber"`
	TxHash         string         `json:"txHash"`
}

// IntentBridgeInitiatedEvent is emitted when the hook hands the USDC to the bridge
type IntentBridgeInitiatedEvent struct {
	IntentID          string `json:"intentId"`
	LifiTransactionID string `json:"lifiTransactionId"`
	BlockNumber       uint64 `json:"blockNumber"`
	TxHash            string `json:"txHash"`
}

// ToIntent converts an IntentCreatedEvent to an Intent. The swap already happened on-chain,
// so the intent starts in swap_completed with the swap transaction recorded.
// Amounts are stored in whole token units.
func (e *IntentCreatedEvent) ToIntent(chain EvmChain) *Intent {
	strategy := YieldStrategy(e.StrategyID)

	createdAt := time.Now().UTC()
	if e.Timestamp != nil && e.Timestamp.Sign() > 0 && e.Timestamp.IsInt64() {
		createdAt = time.Unix(e.Timestamp.Int64(), 0).UTC()
	}

	intent := &Intent{
		ID:            e.IntentID,
		Direction:     DirectionEvmToSui,
		Status:        IntentStatusSwapCompleted,
		SourceAddress: e.User.Hex(),
		DestAddress:   e.SuiDestination.Hex(),
		EvmChain:      chain,
		InputToken:    e.InputToken.Hex(),
		InputAmount:   toUnits(e.InputAmount, tokenDecimals(e.InputToken)),
		USDCAmount:    toUnits(e.USDCAmount, USDCBaseSepolia.Decimals),
		Strategy:      &strategy,
		SwapTxHash:    e.TxHash,
		CreatedAt:     createdAt,
		UpdatedAt:     time.Now().UTC(),
	}

	return intent
}

// toUnits renders a raw on-chain amount as a decimal string in whole token units
func toUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

func tokenDecimals(token common.Address) int32 {
	if token == common.HexToAddress(USDCBaseSepolia.Address) {
		return USDCBaseSepolia.Decimals
	}
	return WETHBase.Decimals
}
