package httpjson

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	web "github.com/naisu-labs/naisu/http"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

const (
	replyBridge = "I can help you bridge assets between EVM and Sui via CCTP. Which direction would you like to go?"

	replySwap = "For swapping on EVM, I can route through Uniswap V4. If you want to swap and bridge to Sui, " +
		"that's a cross-chain intent. Which would you prefer?"

	replyGreeting = "Hello! I'm the Naisu agent. I can find the best yield on Sui, create cross-chain intents " +
		"between EVM and Sui, bridge assets via CCTP and get swap quotes. What would you like to do?"

	replyNoYield = "I couldn't find an enabled yield strategy on Sui right now. Please try again shortly."
)

func (h *handler) setupAIRoutes(rg *gin.RouterGroup) {
	ai := rg.Group("/ai")

	ai.POST("/chat", h.chat)
	ai.GET("/health", h.aiHealth)
}

// chat answers with canned replies picked by keyword. Yield questions cite the best live strategy.
func (h *handler) chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.ErrBadRequest(c, errors.Wrap(err, "invalid request"))
		return
	}

	h.logger.Info().Int("message_length", len(req.Message)).Msg("Chat request received")

	message := strings.ToLower(req.Message)

	var res models.ChatResponse

	switch {
	case containsAny(message, "yield", "apy", "earn"):
		res = h.yieldReply(c)
	case strings.Contains(message, "bridge"):
		res.Reply = replyBridge
	case strings.Contains(message, "swap"):
		res.Reply = replySwap
	default:
		res.Reply = replyGreeting
	}

	web.OK(c, res)
}

func (h *handler) yieldReply(c *gin.Context) models.ChatResponse {
	best := h.deps.Strategies.Best(c.Request.Context())
	if best.Strategy == 0 {
		return models.ChatResponse{Reply: replyNoYield}
	}

	apy := best.APY.StringFixed(2)

	reply := "I've analyzed the current yield opportunities on Sui. " +
		best.Strategy.Protocol() + " offers " + apy + "% APY on " + best.Strategy.Asset()
	if best.TVL.IsPositive() {
		reply += " with $" + best.TVL.StringFixed(0) + " TVL"
	}
	reply += ". Would you like me to prepare a cross-chain intent to bridge and deposit?"

	return models.ChatResponse{
		Reply: reply,
		Intent: &models.IntentParams{
			Action:     "bridge_and_supply",
			DestChain:  "sui",
			Protocol:   strings.ToLower(best.Strategy.Protocol()),
			StrategyID: best.Strategy.ID(),
			APY:        apy,
		},
	}
}

func (h *handler) aiHealth(c *gin.Context) {
	web.Respond(c, http.StatusOK, "AI service is available", nil)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
