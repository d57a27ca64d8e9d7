package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want int
	}{
		{"not found", NotFound("notification", nil), http.StatusNotFound},
		{"bad request", BadRequest("bad", nil), http.StatusBadRequest},
		{"unauthorized", Unauthorized(nil), http.StatusUnauthorized},
		{"forbidden", Forbidden(nil), http.StatusForbidden},
		{"invalid reason", NewInvalidReason("nope", nil), http.StatusUnprocessableEntity},
		{"missing reference", NewMissingReference("actor", nil), http.StatusUnprocessableEntity},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestAppErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause)

	assert.Equal(t, "internal server error: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `invalid reason "nope"`, NewInvalidReason("nope", nil).Error())
}

func TestHasCode(t *testing.T) {
	inner := NewMissingReference("journal", nil)
	wrapped := fmt.Errorf("create notification: %w", BadRequest("invalid notification", inner))

	assert.True(t, HasCode(wrapped, ErrBadRequest))
	assert.True(t, HasCode(wrapped, ErrMissingReference))
	assert.False(t, HasCode(wrapped, ErrInvalidReason))
	assert.False(t, HasCode(errors.New("plain"), ErrBadRequest))
	assert.False(t, HasCode(nil, ErrBadRequest))
}
