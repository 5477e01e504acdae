package httpjson

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/naisu-labs/naisu/clients/cctp"
	"github.com/naisu-labs/naisu/clients/wormhole"
	web "github.com/naisu-labs/naisu/http"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/naisu-labs/naisu/utils"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	attestationStatusComplete = "complete"
	attestationStatusPending  = "pending"

	defaultAttestationAttempts = 1
	defaultAttestationInterval = 2 * time.Second
	maxAttestationIntervalSecs = 30

	// polls must finish well within the request timeout
	attestationPollBudget = 8 * time.Second
)

var (
	bridgeFeeRate = decimal.RequireFromString("0.001")
	bridgeGasFee  = decimal.RequireFromString("0.5")
)

func (h *handler) setupBridgeRoutes(rg *gin.RouterGroup) {
	bridge := rg.Group("/bridge")

	bridge.GET("/status", h.getBridgeStatus)
	bridge.POST("/sui-to-evm", h.initSuiToEvmBridge)
	bridge.POST("/poll-attestation", h.pollAttestation)
	bridge.GET("/fee", h.getBridgeFee)
	bridge.GET("/lifi/status", h.getLifiStatus)
	bridge.GET("/vaa/:chain/:emitter/:sequence", h.getVAA)
}

func (h *handler) getBridgeStatus(c *gin.Context) {
	intent, ok := h.resolveIntent(c, c.Query("intent_id"))
	if !ok {
		return
	}

	amount := intent.USDCAmount
	if amount == "" {
		amount = "0"
	}

	web.OK(c, models.BridgeStatusResponse{
		IntentID:    intent.ID,
		Status:      string(intent.Status),
		SourceChain: intent.SourceChainName(),
		DestChain:   intent.DestChainName(),
		Amount:      amount,
		Nonce:       intent.BridgeNonce,
	})
}

// initSuiToEvmBridge returns the deposit_for_burn call the wallet signs on Sui
func (h *handler) initSuiToEvmBridge(c *gin.Context) {
	var req models.SuiToEvmBridgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.ErrBadRequest(c, errors.Wrap(err, "invalid request"))
		return
	}

	if !utils.IsValidSuiAddress(req.Sender) {
		web.ErrBadRequest(c, errors.New("invalid sender address format"))
		return
	}

	if !utils.IsValidAddress(req.EvmDestination) {
		web.ErrBadRequest(c, errors.New("invalid evm destination format"))
		return
	}

	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		web.ErrBadRequest(c, err)
		return
	}

	tx, err := cctp.SuiBurnParams(amount, req.EvmDestination)
	if err != nil {
		web.ErrBadRequest(c, err)
		return
	}

	h.logger.Info().
		Str(logging.FieldIntent, req.IntentID).
		Str("sender", req.Sender).
		Uint64("amount_raw", tx.Amount).
		Msg("Sui to EVM bridge parameters built")

	web.Respond(c, http.StatusOK, "Bridge parameters calculated", gin.H{
		"tx_params": tx,
		"summary":   "Bridge " + amount.String() + " USDC from Sui to Base Sepolia",
	})
}

func (h *handler) pollAttestation(c *gin.Context) {
	var req models.AttestationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.ErrBadRequest(c, errors.Wrap(err, "invalid request"))
		return
	}

	attempts := req.MaxAttempts
	if attempts == 0 {
		attempts = defaultAttestationAttempts
	}

	if req.IntervalSecs > maxAttestationIntervalSecs {
		web.ErrBadRequest(c, errors.Errorf("interval_secs must be at most %d", maxAttestationIntervalSecs))
		return
	}

	interval := defaultAttestationInterval
	if req.IntervalSecs > 0 {
		interval = time.Duration(req.IntervalSecs) * time.Second
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), attestationPollBudget)
	defer cancel()

	att, err := h.deps.Attestation.PollAttestation(ctx, req.Nonce, attempts, interval)

	switch {
	case errors.Is(err, cctp.ErrAttestationTimeout), errors.Is(err, context.DeadlineExceeded):
		web.OK(c, models.AttestationResponse{
			Nonce:   req.Nonce,
			Status:  attestationStatusPending,
			Message: "Attestation not yet available",
		})
	case err != nil:
		web.ErrInternalServerError(c, errors.Wrap(err, "unable to poll attestation"))
	default:
		web.OK(c, models.AttestationResponse{
			Nonce:       req.Nonce,
			Attestation: att.AttestationSignature,
			Message:     att.Message,
			Status:      attestationStatusComplete,
		})
	}
}

func (h *handler) getBridgeFee(c *gin.Context) {
	amount, err := decimal.NewFromString(c.DefaultQuery("amount", "0"))
	if err != nil || amount.IsNegative() {
		web.ErrBadRequest(c, errors.Wrap(models.ErrInvalidAmount, "amount"))
		return
	}

	fee := amount.Mul(bridgeFeeRate)

	web.OK(c, gin.H{
		"bridge_fee": fee.String(),
		"gas_fee":    bridgeGasFee.String(),
		"total_fee":  fee.Add(bridgeGasFee).String(),
		"token":      "USDC",
	})
}

func (h *handler) getLifiStatus(c *gin.Context) {
	txHash := c.Query("tx_hash")
	if txHash == "" {
		web.ErrBadRequest(c, errors.Wrap(ErrParamRequired, "tx_hash"))
		return
	}

	status, err := h.deps.Lifi.GetStatus(c.Request.Context(), txHash, c.Query("from_chain"))
	if err != nil {
		web.ErrInternalServerError(c, errors.Wrap(err, "unable to get li.fi status"))
		return
	}

	web.OK(c, status)
}

type vaaResponse struct {
	VAA      *wormhole.VAA `json:"vaa"`
	Verified bool          `json:"verified"`
	Error    string        `json:"error,omitempty"`
}

func (h *handler) getVAA(c *gin.Context) {
	chainID, err := strconv.ParseUint(c.Param("chain"), 10, 16)
	if err != nil {
		web.ErrBadRequest(c, errors.New("invalid chain parameter"))
		return
	}

	sequence, err := strconv.ParseUint(c.Param("sequence"), 10, 64)
	if err != nil {
		web.ErrBadRequest(c, errors.New("invalid sequence parameter"))
		return
	}

	raw, err := h.deps.VAAs.GetVAA(c.Request.Context(), uint16(chainID), c.Param("emitter"), sequence)
	if err != nil {
		respondErr(c, err)
		return
	}

	v, err := h.deps.VAAs.ParseAndVerify(hexutil.Encode(raw))
	if v == nil {
		respondErr(c, err)
		return
	}

	res := vaaResponse{VAA: v, Verified: err == nil}
	if err != nil {
		res.Error = err.Error()
	}

	web.OK(c, res)
}
