package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/notification-ledger/internal/repository"
	apperrors "github.com/jwalitptl/notification-ledger/pkg/errors"
)

type Response struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError names one request field that failed binding validation.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondError writes err using the status its AppError code maps to.
// Anything unrecognised becomes a 500 whose detail stays in the log.
func RespondError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp := NewErrorResponse("validation failed")
		for _, fe := range verrs {
			resp.Errors = append(resp.Errors, FieldError{Field: fe.Field(), Tag: fe.Tag()})
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, resp)
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := appErr.StatusCode()
		if status >= http.StatusInternalServerError {
			logError(c, err)
		}
		c.AbortWithStatusJSON(status, NewErrorResponse(appErr.Message))
		return
	}

	if errors.Is(err, repository.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, NewErrorResponse("not found"))
		return
	}

	logError(c, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
}

// RespondBindError reports a request that could not be bound. Domain and
// validation errors keep their own status; malformed input is a 400.
func RespondBindError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	var verrs validator.ValidationErrors
	if errors.As(err, &appErr) || errors.As(err, &verrs) {
		RespondError(c, err)
		return
	}
	RespondBadRequest(c, "invalid request: "+err.Error())
}

// RespondBadRequest reports malformed input such as an unparsable id or body.
func RespondBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, NewErrorResponse(message))
}

func logError(c *gin.Context, err error) {
	log.Error().
		Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("request_id", c.GetString("request_id")).
		Msg("Request failed")
}
