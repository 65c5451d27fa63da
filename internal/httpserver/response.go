package httpserver

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

type envelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{OK: true, Data: data})
}

func respondInvalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, envelope{OK: false, Error: msg})
}

// respondError maps the error taxonomy to HTTP status codes: validation
// failures carry their field-level message, not-found is 404, and anything
// else is a generic 500 with no technical detail leaked.
func respondError(c *gin.Context, logger *log.Logger, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		respondInvalid(c, ve.Error())
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, envelope{OK: false, Error: "not found"})
	default:
		logger.Printf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, envelope{OK: false, Error: "something went wrong, please try again"})
	}
}
