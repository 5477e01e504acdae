package httpjson

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/naisu-labs/naisu/clients/lifi"
	web "github.com/naisu-labs/naisu/http"
	"github.com/naisu-labs/naisu/models"
	"github.com/naisu-labs/naisu/utils"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// indicative ETH price in USDC until an oracle is wired in
	ethUSDCRate = decimal.NewFromInt(3000)
	swapFeeRate = decimal.RequireFromString("0.003")
)

func (h *handler) setupQuoteRoutes(rg *gin.RouterGroup) {
	quotes := rg.Group("/quotes")

	quotes.GET("", h.getQuote)
	quotes.GET("/route", h.getRouteQuote)
}

// getQuote returns an indicative quote at a fixed rate
func (h *handler) getQuote(c *gin.Context) {
	var (
		inputToken  = c.Query("input_token")
		outputToken = c.Query("output_token")
		amountRaw   = c.Query("amount")
	)

	if inputToken == "" || outputToken == "" {
		web.ErrBadRequest(c, errors.Wrap(ErrParamRequired, "input_token and output_token"))
		return
	}

	amount, err := utils.ParseAmount(amountRaw)
	if err != nil {
		web.ErrBadRequest(c, err)
		return
	}

	rate, inverse := exchangeRate(inputToken, outputToken)

	output := amount.Mul(rate)
	rateFloat, _ := rate.Float64()

	if inverse {
		output = amount.Div(rate)
		rateFloat = 1 / rateFloat
	}

	web.OK(c, models.QuoteResponse{
		InputToken:   inputToken,
		OutputToken:  outputToken,
		InputAmount:  amountRaw,
		OutputAmount: output.String(),
		ExchangeRate: rateFloat,
		Fee:          amount.Mul(swapFeeRate).String(),
	})
}

// exchangeRate returns the output per input, or the input per output when inverse is set
func exchangeRate(input, output string) (rate decimal.Decimal, inverse bool) {
	input, output = strings.ToLower(input), strings.ToLower(output)

	switch {
	case strings.Contains(input, "eth") && strings.Contains(output, "usdc"):
		return ethUSDCRate, false
	case strings.Contains(input, "usdc") && strings.Contains(output, "eth"):
		return ethUSDCRate, true
	default:
		return decimal.NewFromInt(1), false
	}
}

// getRouteQuote proxies a Li.Fi quote. Amounts are in the token's smallest unit.
func (h *handler) getRouteQuote(c *gin.Context) {
	req := lifi.QuoteRequest{
		FromChain:   c.Query("from_chain"),
		ToChain:     c.DefaultQuery("to_chain", c.Query("from_chain")),
		FromToken:   c.Query("from_token"),
		ToToken:     c.Query("to_token"),
		FromAmount:  c.Query("amount"),
		FromAddress: c.Query("from_address"),
		ToAddress:   c.Query("to_address"),
	}

	if req.FromChain == "" || req.FromToken == "" || req.ToToken == "" || req.FromAmount == "" {
		web.ErrBadRequest(c, errors.Wrap(ErrParamRequired, "from_chain, from_token, to_token and amount"))
		return
	}

	quote, err := h.deps.Lifi.GetQuote(c.Request.Context(), req)
	if err != nil {
		web.ErrInternalServerError(c, errors.Wrap(err, "unable to get li.fi quote"))
		return
	}

	web.OK(c, quote)
}
