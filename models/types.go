package models

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// EvmChain represents a supported EVM network on the source side of an intent
type EvmChain string

const (
	EvmChainEthereum    EvmChain = "ethereum"
	EvmChainBase        EvmChain = "base"
	EvmChainArbitrum    EvmChain = "arbitrum"
	EvmChainOptimism    EvmChain = "optimism"
	EvmChainBaseSepolia EvmChain = "base_sepolia"
	EvmChainSepolia     EvmChain = "sepolia"
)

type evmChainInfo struct {
	chainID    uint64
	name       string
	lifiKey    string
	testnet    bool
	cctpDomain uint32
}

var evmChains = map[EvmChain]evmChainInfo{
	EvmChainEthereum:    {chainID: 1, name: "Ethereum", lifiKey: "ETH", cctpDomain: 0},
	EvmChainBase:        {chainID: 8453, name: "Base", lifiKey: "BAS", cctpDomain: 5},
	EvmChainArbitrum:    {chainID: 42161, name: "Arbitrum", lifiKey: "ARB", cctpDomain: 3},
	EvmChainOptimism:    {chainID: 10, name: "Optimism", lifiKey: "OPT", cctpDomain: 2},
	EvmChainBaseSepolia: {chainID: 84532, name: "Base Sepolia", lifiKey: "BAS", testnet: true, cctpDomain: 5},
	EvmChainSepolia:     {chainID: 11155111, name: "Sepolia", lifiKey: "ETH", testnet: true, cctpDomain: 0},
}

// EvmChainFromID resolves a chain by its numeric EVM chain id
func EvmChainFromID(chainID uint64) (EvmChain, error) {
	for chain, info := range evmChains {
		if info.chainID == chainID {
			return chain, nil
		}
	}

	return "", errors.Wrapf(ErrUnsupportedChain, "chain id %d", chainID)
}

func (c EvmChain) Valid() bool {
	_, ok := evmChains[c]
	return ok
}

func (c EvmChain) ChainID() uint64 {
	return evmChains[c].chainID
}

func (c EvmChain) Name() string {
	if info, ok := evmChains[c]; ok {
		return info.name
	}
	return string(c)
}

// LifiKey is the chain key understood by the Li.Fi API
func (c EvmChain) LifiKey() string {
	return evmChains[c].lifiKey
}

func (c EvmChain) IsTestnet() bool {
	return evmChains[c].testnet
}

// CCTPDomain returns Circle's domain id for the chain
func (c EvmChain) CCTPDomain() uint32 {
	return evmChains[c].cctpDomain
}

func (c *EvmChain) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "evm chain must be a string")
	}

	chain := EvmChain(raw)
	if !chain.Valid() {
		return errors.Wrapf(ErrUnsupportedChain, "invalid evm chain %q", raw)
	}

	*c = chain
	return nil
}

// SuiNetwork is the Sui deployment an intent settles on
type SuiNetwork string

const (
	SuiMainnet SuiNetwork = "mainnet"
	SuiTestnet SuiNetwork = "testnet"
	SuiDevnet  SuiNetwork = "devnet"
)

func (n SuiNetwork) RPCURL() string {
	switch n {
	case SuiMainnet, SuiDevnet:
		return fmt.Sprintf("https://fullnode.%s.sui.io:443", n)
	default:
		return "https://fullnode.testnet.sui.io:443"
	}
}

// Token represents a supported token on a chain
type Token struct {
	Address  string   `json:"address"`
	Symbol   string   `json:"symbol"`
	Decimals int32    `json:"decimals"`
	Chain    EvmChain `json:"chain"`
}

var (
	USDCBaseSepolia = Token{
		Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Symbol:   "USDC",
		Decimals: 6,
		Chain:    EvmChainBaseSepolia,
	}

	WETHBase = Token{
		Address:  "0x4200000000000000000000000000000000000006",
		Symbol:   "WETH",
		Decimals: 18,
		Chain:    EvmChainBaseSepolia,
	}
)

// ChainInfo is the public description of a chain served by the API
type ChainInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ChainType string `json:"chain_type"`
	ChainID   uint64 `json:"chain_id"`
}

// ChainStatus is a point-in-time health probe of a chain
type ChainStatus struct {
	ChainID     string  `json:"chain_id"`
	Status      string  `json:"status"`
	BlockHeight *uint64 `json:"block_height"`
	LatencyMS   *int64  `json:"latency_ms"`
	Error       string  `json:"error,omitempty"`
}
