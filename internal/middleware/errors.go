package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opin-voting/backend/internal/models"
	"github.com/opin-voting/backend/pkg/response"
)

type errorKind struct {
	err    error
	status int
	code   string
}

var errorKinds = []errorKind{
	{models.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{models.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{models.ErrEmptySelection, http.StatusBadRequest, "empty_selection"},
	{models.ErrTooManySelections, http.StatusBadRequest, "too_many_selections"},
	{models.ErrInvalidOption, http.StatusBadRequest, "invalid_option"},
	{models.ErrInvalidOpin, http.StatusBadRequest, "invalid_opin"},
}

// ErrorCode returns the status and code for a domain error, or 500/"internal".
func ErrorCode(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// Error writes err as an API error. Domain errors keep their message;
// anything else is logged and replaced by fallback.
func Error(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	status, code := ErrorCode(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback, zap.Error(err), zap.String("path", c.Request.URL.Path))
		response.Fail(c, status, code, fallback)
		return
	}
	response.Fail(c, status, code, err.Error())
}
