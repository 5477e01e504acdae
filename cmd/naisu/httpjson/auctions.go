package httpjson

import (
	"github.com/gin-gonic/gin"
	web "github.com/naisu-labs/naisu/http"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

func (h *handler) setupAuctionRoutes(rg *gin.RouterGroup) {
	auctions := rg.Group("/auctions")

	auctions.GET("", h.listAuctions)
	auctions.GET("/:id", h.getAuction)
	auctions.POST("/:id/bids", h.submitBid)
	auctions.POST("/:id/fill", h.fillAuction)
}

func (h *handler) listAuctions(c *gin.Context) {
	status := models.AuctionStatus(c.Query("status"))

	switch status {
	case "", models.AuctionStatusOpen, models.AuctionStatusSettled, models.AuctionStatusExpired:
	default:
		web.ErrBadRequest(c, errors.Errorf("invalid status %q", status))
		return
	}

	auctions, err := h.deps.Database.ListAuctions(c.Request.Context(), string(status))
	if err != nil {
		web.ErrInternalServerError(c, err)
		return
	}

	if auctions == nil {
		auctions = []*models.Auction{}
	}

	web.OK(c, auctions)
}

func (h *handler) getAuction(c *gin.Context) {
	ctx := c.Request.Context()

	auction, err := h.deps.Database.GetAuction(ctx, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}

	bids, err := h.deps.Database.ListBids(ctx, auction.ID)
	if err != nil {
		web.ErrInternalServerError(c, errors.Wrap(err, "unable to list bids"))
		return
	}

	if bids == nil {
		bids = []*models.Bid{}
	}

	res := models.AuctionResponse{Auction: auction, Bids: bids}

	if price, ok := h.deps.Auctions.CurrentPrice(auction); ok && auction.IsOpen() {
		res.CurrentPrice = price.String()
	}

	web.OK(c, res)
}

func (h *handler) submitBid(c *gin.Context) {
	var req models.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.ErrBadRequest(c, errors.Wrap(err, "invalid request"))
		return
	}

	bid, err := h.deps.Auctions.SubmitBid(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.logger.Debug().Err(err).Str(logging.FieldAuction, c.Param("id")).Msg("Bid rejected")
		respondErr(c, err)
		return
	}

	web.Created(c, bid)
}

func (h *handler) fillAuction(c *gin.Context) {
	var req models.FillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.ErrBadRequest(c, errors.Wrap(err, "invalid request"))
		return
	}

	bid, err := h.deps.Auctions.Fill(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.logger.Debug().Err(err).Str(logging.FieldAuction, c.Param("id")).Msg("Fill rejected")
		respondErr(c, err)
		return
	}

	web.Created(c, bid)
}
