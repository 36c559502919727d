package apperr_test

import (
	"fmt"
	"testing"

	"pharmacy/internal/apperr"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_OrNil(t *testing.T) {
	var ve apperr.ValidationError
	assert.NoError(t, ve.OrNil())

	ve.Add("email", "is required")
	err := ve.OrNil()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "email: is required")
}

func TestAsValidation_Wrapped(t *testing.T) {
	err := fmt.Errorf("register: %w", apperr.Invalid("confirmPassword", "Passwords do not match"))

	ve, ok := apperr.AsValidation(err)
	assert.True(t, ok)
	assert.Len(t, ve.Fields, 1)
	assert.Equal(t, "confirmPassword", ve.Fields[0].Field)

	_, ok = apperr.AsValidation(apperr.ErrNotFound)
	assert.False(t, ok)
}
