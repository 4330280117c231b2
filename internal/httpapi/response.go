package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memengine/memengine/internal/engineerr"
)

// Response is the envelope every handler responds with.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, &Response{Success: true, Message: message, Data: data})
}

func created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, &Response{Success: true, Message: message, Data: data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, &Response{Success: false, Message: message})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, &Response{Success: false, Message: message})
}

// fail maps an engineerr.Kind to an HTTP status and writes the envelope;
// unrecognized errors fall back to 500.
func fail(c *gin.Context, err error) {
	var e *engineerr.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case engineerr.Validation, engineerr.InvalidTransition, engineerr.Parse:
			c.JSON(http.StatusBadRequest, &Response{Success: false, Message: e.Error()})
			return
		case engineerr.NotFound:
			c.JSON(http.StatusNotFound, &Response{Success: false, Message: e.Error()})
			return
		case engineerr.OptimizationBusy:
			c.JSON(http.StatusConflict, &Response{Success: false, Message: e.Error()})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, &Response{Success: false, Message: err.Error()})
}
