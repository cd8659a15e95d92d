package model

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTag(t *testing.T) {
	for _, tag := range AllTags {
		got, err := ParseTag(string(tag))
		require.NoError(t, err)
		assert.Equal(t, tag, got)
	}

	_, err := ParseTag("Interested")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidTag))

	// Case matters: the vocabulary is closed and exact.
	_, err = ParseTag("scheduled")
	assert.Error(t, err)
}

func TestValidTag(t *testing.T) {
	assert.True(t, ValidTag("Wrong-number"))
	assert.False(t, ValidTag("wrong-number"))
	assert.False(t, ValidTag(""))
}

func TestParseSentiment(t *testing.T) {
	assert.Equal(t, SentimentPositive, ParseSentiment("Positive"))
	assert.Equal(t, SentimentNegative, ParseSentiment("Negative"))
	assert.Equal(t, SentimentNeutral, ParseSentiment("Neutral"))
	assert.Equal(t, SentimentNeutral, ParseSentiment("positive"))
	assert.Equal(t, SentimentNeutral, ParseSentiment("confused"))
	assert.Equal(t, SentimentNeutral, ParseSentiment(""))
}
