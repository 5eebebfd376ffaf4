package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsFreeText(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/subscriptions/:id"),
		attribute.String("pause_reason", "injury"),
		attribute.String("member.email", "a@b.c"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorFlattens(t *testing.T) {
	base := errors.New("boom")
	err := SafeError(fmt.Errorf("wrap: %w", base))
	assert.EqualError(t, err, "wrap: boom")
	assert.False(t, errors.Is(err, base))
	assert.Nil(t, SafeError(nil))
}
