package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatorJoinsMessages(t *testing.T) {
	var v Validator
	v.Check(true, "never shown")
	v.Check(false, "name is required")
	v.Add("phone is required")

	err := v.Err()
	status, msg := StatusOf(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "name is required; phone is required", msg)
}

func TestValidatorNoErrors(t *testing.T) {
	var v Validator
	v.Check(true, "ok")
	assert.NoError(t, v.Err())
}

func TestStatusOfWrapped(t *testing.T) {
	err := fmt.Errorf("review: %w", Conflict("request was modified concurrently"))
	status, msg := StatusOf(err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "request was modified concurrently", msg)
}

func TestStatusOfUnknownHidesCause(t *testing.T) {
	status, msg := StatusOf(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", msg)
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := Internal("database error", cause)
	assert.ErrorIs(t, err, cause)
	status, msg := StatusOf(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "database error", msg)
}
