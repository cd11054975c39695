package oauthkit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsValidationError(t *testing.T) {
	verr := AsValidationError(invalidErr(ErrorCodeInvalidGrant))
	require.NotNil(t, verr)
	assert.Equal(t, ErrorCodeInvalidGrant, verr.Code)
	assert.Equal(t, SeverityInvalid, verr.Severity)

	// Wrapped validation errors still unwrap.
	wrapped := fmt.Errorf("token endpoint: %w", brokenErr(ErrorCodeInvalidClientID))
	verr = AsValidationError(wrapped)
	require.NotNil(t, verr)
	assert.Equal(t, ErrorCodeInvalidClientID, verr.Code)

	assert.Nil(t, AsValidationError(errors.New("store down")))
	assert.Nil(t, AsValidationError(nil))
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "invalid_scope", invalidErr(ErrorCodeInvalidScope).Error())
}
