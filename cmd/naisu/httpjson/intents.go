package httpjson

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/naisu-labs/naisu/db"
	web "github.com/naisu-labs/naisu/http"
	"github.com/naisu-labs/naisu/logging"
	"github.com/naisu-labs/naisu/models"
	"github.com/naisu-labs/naisu/utils"
	"github.com/pkg/errors"
)

func (h *handler) setupIntentRoutes(rg *gin.RouterGroup) {
	intents := rg.Group("/intents")

	intents.GET("", h.listIntents)
	intents.POST("", h.createIntent)
	intents.GET("/:id", h.getIntent)
	intents.GET("/:id/status", h.getIntentStatus)
	intents.GET("/user/:address", h.getIntentsByUser)
}

func (h *handler) createIntent(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.ErrBadRequest(c, errors.Wrap(err, "invalid request"))
		return
	}

	if err := utils.ValidateIntentRequest(&req); err != nil {
		web.ErrBadRequest(c, err)
		return
	}

	intent, err := newIntentFromRequest(uuid.New().String(), req)
	if err != nil {
		web.ErrBadRequest(c, err)
		return
	}

	logger := h.logger.With().
		Str(logging.FieldIntent, intent.ID).
		Str(logging.FieldDirection, string(intent.Direction)).
		Logger()

	if err := h.deps.Database.CreateIntent(ctx, intent); err != nil {
		if errors.Is(err, db.ErrIntentExists) {
			web.ErrConflict(c, err)
			return
		}

		web.ErrInternalServerError(c, errors.Wrap(err, "unable to store intent"))
		return
	}

	logger.Info().Msg("Intent created")

	// the intent is stored at this point, a failed auction is reported but does not fail the request
	switch intent.Direction {
	case models.DirectionEvmToSui:
		if _, err := h.deps.Auctions.OpenSealedBid(ctx, intent); err != nil {
			logger.Error().Err(err).Msg("Unable to open sealed-bid auction")
		}
	case models.DirectionSuiToEvm:
		if _, err := h.deps.Auctions.OpenDutch(ctx, intent); err != nil {
			logger.Error().Err(err).Msg("Unable to open dutch auction")
		}

		if !h.deps.Queue.Enqueue(intent.ID) {
			logger.Warn().Msg("Intent was not enqueued")
		}
	}

	web.Created(c, intent.ToResponse())
}

func newIntentFromRequest(id string, req models.CreateIntentRequest) (*models.Intent, error) {
	var (
		intent *models.Intent
		err    error
	)

	switch req.Direction {
	case models.DirectionEvmToSui:
		intent, err = models.NewEvmToSuiIntent(
			id,
			req.SourceAddress,
			req.DestAddress,
			req.EvmChain,
			req.InputToken,
			req.InputAmount,
			req.Strategy,
		)
	case models.DirectionSuiToEvm:
		intent = models.NewSuiToEvmIntent(
			id,
			req.SourceAddress,
			req.DestAddress,
			req.EvmChain,
			req.InputToken,
			req.InputAmount,
		)
	default:
		err = errors.Errorf("invalid direction %q", req.Direction)
	}

	if err != nil {
		return nil, err
	}

	intent.MinAPYBps = req.MinAPYBps

	return intent, nil
}

func (h *handler) getIntent(c *gin.Context) {
	intent, ok := h.resolveIntent(c, c.Param("id"))
	if !ok {
		return
	}

	web.OK(c, intent.ToResponse())
}

func (h *handler) getIntentStatus(c *gin.Context) {
	intent, ok := h.resolveIntent(c, c.Param("id"))
	if !ok {
		return
	}

	web.OK(c, intent.ToStatusResponse())
}

// resolveIntent loads an intent by id and writes the error response when it can't
func (h *handler) resolveIntent(c *gin.Context, id string) (*models.Intent, bool) {
	if id == "" {
		web.ErrBadRequest(c, errors.Wrap(ErrParamRequired, "intent id"))
		return nil, false
	}

	if !utils.IsValidIntentID(id) {
		h.logger.Debug().Str(logging.FieldIntent, id).Msg("Invalid intent ID format")
		web.ErrBadRequest(c, errors.New("invalid intent id format"))
		return nil, false
	}

	intent, err := h.deps.Database.GetIntent(c.Request.Context(), id)
	if err != nil {
		h.logger.Debug().Err(err).Str(logging.FieldIntent, id).Msg("Error getting intent")

		if errors.Is(err, models.ErrIntentNotFound) {
			web.ErrNotFound(c, errors.Wrap(ErrNotFound, "intent"))
			return nil, false
		}

		web.ErrInternalServerError(c, err)
		return nil, false
	}

	return intent, true
}

func (h *handler) listIntents(c *gin.Context) {
	ctx := c.Request.Context()

	status := c.Query("status")
	if status != "" && !models.IntentStatus(status).Valid() {
		web.ErrBadRequest(c, errors.Errorf("invalid status %q", status))
		return
	}

	pag, err := resolvePagination(c)
	if err != nil {
		web.ErrBadRequest(c, err)
		return
	}

	intents, totalCount, err := h.deps.Database.ListIntentsPaginated(ctx, pag.Page, pag.PageSize, status)
	if err != nil {
		web.ErrInternalServerError(c, err)
		return
	}

	web.OK(c, models.NewPaginatedResponse(toIntentResponses(intents), pag.Page, pag.PageSize, totalCount))
}

// getIntentsByUser lists intents where the address is either the source or the destination
func (h *handler) getIntentsByUser(c *gin.Context) {
	ctx := c.Request.Context()

	address := c.Param("address")
	if !utils.IsValidAddress(address) && !utils.IsValidSuiAddress(address) {
		web.ErrBadRequest(c, errors.New("invalid address format"))
		return
	}

	pag, err := resolvePagination(c)
	if err != nil {
		web.ErrBadRequest(c, err)
		return
	}

	intents, totalCount, err := h.deps.Database.ListIntentsByAddressPaginated(ctx, address, pag.Page, pag.PageSize)
	if err != nil {
		web.ErrInternalServerError(c, errors.Wrap(err, "unable to list intents by address"))
		return
	}

	web.OK(c, models.NewPaginatedResponse(toIntentResponses(intents), pag.Page, pag.PageSize, totalCount))
}

func toIntentResponses(intents []*models.Intent) []*models.IntentResponse {
	response := make([]*models.IntentResponse, 0, len(intents))
	for _, intent := range intents {
		response = append(response, intent.ToResponse())
	}

	return response
}
