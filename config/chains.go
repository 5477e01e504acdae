package config

import (
	"strings"

	"github.com/naisu-labs/naisu/models"
)

const (
	ZeroAddress = "0x0000000000000000000000000000000000000000"

	defaultChainID = 84532
)

var defaultRPCURLs = map[uint64]string{
	1:        "https://eth.llamarpc.com",
	8453:     "https://mainnet.base.org",
	42161:    "https://arb1.arbitrum.io/rpc",
	10:       "https://mainnet.optimism.io",
	84532:    "https://sepolia.base.org",
	11155111: "https://rpc.sepolia.org",
}

// envPrefix returns the variable prefix of a chain, e.g. BASE_SEPOLIA for base_sepolia
func envPrefix(chain models.EvmChain) string {
	return strings.ToUpper(string(chain))
}

// SupportedChains lists the chains exposed by the chains endpoint
var SupportedChains = []models.ChainInfo{
	{ID: "base", Name: "Base", ChainType: "evm", ChainID: models.EvmChainBase.ChainID()},
	{ID: "base_sepolia", Name: "Base Sepolia", ChainType: "evm", ChainID: models.EvmChainBaseSepolia.ChainID()},
	{ID: "ethereum", Name: "Ethereum", ChainType: "evm", ChainID: models.EvmChainEthereum.ChainID()},
	{ID: "arbitrum", Name: "Arbitrum", ChainType: "evm", ChainID: models.EvmChainArbitrum.ChainID()},
	{ID: "sui", Name: "Sui", ChainType: "sui", ChainID: 0},
	{ID: "sui_testnet", Name: "Sui Testnet", ChainType: "sui", ChainID: 0},
}
