package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFindsKindThroughWrapping(t *testing.T) {
	base := Transportf("places.nearby", "status %d", 503)
	wrapped := fmt.Errorf("find pros: %w", base)

	assert.True(t, Is(wrapped, Transport))
	assert.False(t, Is(wrapped, Validation))
	assert.False(t, Is(errors.New("plain"), Transport))
	assert.False(t, Is(nil, Transport))
}

func TestIsNestedKinds(t *testing.T) {
	inner := Parsef("diagnosis", "no JSON object")
	outer := New(Partial, "visual", inner)

	assert.True(t, Is(outer, Partial))
	assert.True(t, Is(outer, Parse))
}

func TestErrorMessage(t *testing.T) {
	err := Validationf("pipeline.run", "description or media required")
	assert.Equal(t, "pipeline.run: validation error: description or media required", err.Error())
	assert.Equal(t, "transport error: boom", New(Transport, "", errors.New("boom")).Error())
}
