package httpjson

import (
	"strconv"

	"github.com/gin-gonic/gin"
	web "github.com/naisu-labs/naisu/http"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

func (h *handler) setupStrategyRoutes(rg *gin.RouterGroup) {
	strategies := rg.Group("/strategies")

	strategies.GET("", h.listStrategies)
	strategies.GET("/:id", h.getStrategy)
}

func (h *handler) listStrategies(c *gin.Context) {
	list := h.deps.Strategies.List(c.Request.Context())

	response := make([]*models.StrategyResponse, 0, len(list))
	for _, info := range list {
		response = append(response, info.ToResponse())
	}

	web.OK(c, response)
}

// getStrategy accepts any id in 1..255, ids past the built-in set are custom strategies
func (h *handler) getStrategy(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 8)
	if err != nil || id == 0 {
		web.ErrBadRequest(c, errors.New("invalid strategy id (must be between 1 and 255)"))
		return
	}

	info := h.deps.Strategies.Get(c.Request.Context(), models.YieldStrategy(id))

	web.OK(c, info.ToResponse())
}
