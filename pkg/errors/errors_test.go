package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(errors.New("boom"))
	require.NotNil(t, err)
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestIsMatchesByCode(t *testing.T) {
	cloned := Clone(ErrCapacityConflict, "course 1000001 is full")
	wrapped := fmt.Errorf("select: %w", cloned)
	assert.True(t, errors.Is(wrapped, ErrCapacityConflict))
	assert.False(t, errors.Is(wrapped, ErrIDConflict))
}

func TestLookup(t *testing.T) {
	e, ok := Lookup("STUDENT_NOT_FOUND")
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, e.Status)

	_, ok = Lookup("SOMETHING_ELSE")
	assert.False(t, ok)

	// Missing resources always carry a specific code.
	_, ok = Lookup("NOT_FOUND")
	assert.False(t, ok)
}
