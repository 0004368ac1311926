package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusMapping, true},
		{StatusDraft, StatusProcessing, true},
		{StatusMapping, StatusProcessing, true},
		{StatusMapping, StatusCancelled, true},
		{StatusMapping, StatusPublished, false},
		{StatusProcessing, StatusPublished, true},
		{StatusPublished, StatusDeprecated, true},
		{StatusPublished, StatusDraft, false},
		{StatusCancelled, StatusDraft, false},
		{StatusFailed, StatusProcessing, false},
		{StatusDeprecated, StatusPublished, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusDeprecated.Terminal())
	assert.False(t, StatusPublished.Terminal())
	assert.False(t, StatusMapping.Terminal())
}

func TestStatusAccess(t *testing.T) {
	assert.True(t, StatusPublished.Queryable())
	assert.True(t, StatusDeprecated.Queryable())
	assert.False(t, StatusMapping.Queryable())

	assert.True(t, StatusMapping.Previewable())
	assert.False(t, StatusPublished.Previewable())
	assert.False(t, StatusFailed.Previewable())
}

func TestCheckTransition(t *testing.T) {
	require.NoError(t, CheckTransition(StatusDraft, StatusMapping))

	err := CheckTransition(StatusFailed, StatusPublished)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusFailed, te.From)
	assert.Contains(t, err.Error(), "failed to published")
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("processing")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, s)

	_, err = ParseStatus("archived")
	assert.Error(t, err)
}
