package util

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortableULID(t *testing.T) {
	a, b := New(), New()
	_, err := ulid.ParseStrict(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestValidateWebhookURL(t *testing.T) {
	got, err := ValidateWebhookURL("  https://example.com/hook ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", got)

	for _, bad := range []string{"", "example.com/hook", "ftp://example.com", "https://", "::"} {
		_, err := ValidateWebhookURL(bad)
		assert.ErrorIs(t, err, ErrInvalidWebhookURL, bad)
	}
}
