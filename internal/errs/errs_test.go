package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := Invalid("total", "must be a positive number")
	assert.Equal(t, "total: must be a positive number", err.Error())
	assert.True(t, IsValidation(err))

	// 包装后仍可识别
	wrapped := fmt.Errorf("checkout: %w", err)
	assert.True(t, IsValidation(wrapped))

	assert.False(t, IsValidation(ErrNotFound))
	assert.False(t, IsValidation(nil))
}

func TestValidationErrorWithoutField(t *testing.T) {
	err := &ValidationError{Msg: "payload required"}
	assert.Equal(t, "payload required", err.Error())
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrUnauthorized, ErrNotFound, ErrConflict, ErrGateway, ErrStore}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
