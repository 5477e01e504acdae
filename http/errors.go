package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/naisu-labs/naisu/models"
)

func ErrNotFound(c *gin.Context, err error) {
	Err(c, http.StatusNotFound, err)
}

func ErrBadRequest(c *gin.Context, err error) {
	Err(c, http.StatusBadRequest, err)
}

func ErrConflict(c *gin.Context, err error) {
	Err(c, http.StatusConflict, err)
}

func ErrInternalServerError(c *gin.Context, err error) {
	Err(c, http.StatusInternalServerError, err)
}

func Err(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, models.Envelope{
		Success: false,
		Code:    code,
		Message: http.StatusText(code),
		Error:   err.Error(),
	})
}

// OK writes a successful envelope
func OK(c *gin.Context, data any) {
	Respond(c, http.StatusOK, "", data)
}

func Created(c *gin.Context, data any) {
	Respond(c, http.StatusCreated, "", data)
}

func Respond(c *gin.Context, code int, message string, data any) {
	c.JSON(code, models.Envelope{
		Success: true,
		Code:    code,
		Message: message,
		Data:    data,
	})
}
