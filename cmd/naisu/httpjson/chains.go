package httpjson

import (
	"github.com/gin-gonic/gin"
	web "github.com/naisu-labs/naisu/http"
	"github.com/naisu-labs/naisu/models"
)

const (
	chainTypeEVM = "evm"
	chainTypeSui = "sui"
)

// supportedChains is the public chain list, in display order
var supportedChains = []models.ChainInfo{
	evmChainInfo(models.EvmChainBase),
	evmChainInfo(models.EvmChainBaseSepolia),
	evmChainInfo(models.EvmChainEthereum),
	evmChainInfo(models.EvmChainArbitrum),
	{ID: "sui", Name: "Sui", ChainType: chainTypeSui},
	{ID: "sui_testnet", Name: "Sui Testnet", ChainType: chainTypeSui},
}

func evmChainInfo(chain models.EvmChain) models.ChainInfo {
	return models.ChainInfo{
		ID:        string(chain),
		Name:      chain.Name(),
		ChainType: chainTypeEVM,
		ChainID:   chain.ChainID(),
	}
}

func (h *handler) setupChainRoutes(rg *gin.RouterGroup) {
	chains := rg.Group("/chains")

	chains.GET("", h.listChains)
	chains.GET("/status", h.getChainStatus)
}

func (h *handler) listChains(c *gin.Context) {
	web.OK(c, gin.H{"chains": supportedChains})
}

func (h *handler) getChainStatus(c *gin.Context) {
	web.OK(c, h.deps.ChainStatus.Status(c.Request.Context()))
}
