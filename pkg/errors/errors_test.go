package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("plan: %w", Clone(ErrInvalidQuarter, "quarter Q7 is not recognised"))

	appErr := FromError(wrapped)

	assert.Equal(t, ErrInvalidQuarter.Code, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Equal(t, "quarter Q7 is not recognised", appErr.Message)
	assert.Equal(t, "quarter must be one of Q1, Q2, Q3, Q4", ErrInvalidQuarter.Message, "Clone must not mutate the template")
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("boom")

	appErr := FromError(cause)

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, FromError(nil))
}

func TestWrapMessage(t *testing.T) {
	err := Wrap(errors.New("redis down"), ErrInternal.Code, ErrInternal.Status, "cache lookup failed")

	assert.Equal(t, "cache lookup failed: redis down", err.Error())
}
