package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeID(t *testing.T) {
	t.Run("pads short ids", func(t *testing.T) {
		id, err := NormalizeID("1234")
		require.NoError(t, err)
		assert.Equal(t, EntityID("00001234"), id)
	})

	t.Run("padding is idempotent", func(t *testing.T) {
		once, err := NormalizeID("42")
		require.NoError(t, err)
		twice, err := NormalizeID(string(once))
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		id, err := NormalizeID(" 12345678\n")
		require.NoError(t, err)
		assert.Equal(t, EntityID("12345678"), id)
	})

	t.Run("rejects non-digits and overlong input", func(t *testing.T) {
		for _, raw := range []string{"", "abc", "1234567a", "123456789", "12-34567"} {
			_, err := NormalizeID(raw)
			assert.Error(t, err, "input %q", raw)
		}
	})
}

func TestEntityIDShard(t *testing.T) {
	id, err := NormalizeID("70790226")
	require.NoError(t, err)
	assert.Equal(t, "7", id.Shard())

	padded, err := NormalizeID("226")
	require.NoError(t, err)
	assert.Equal(t, "0", padded.Shard())
}

func TestEntityKind(t *testing.T) {
	assert.True(t, KindCompany.IsValid())
	assert.True(t, KindBusiness.IsValid())
	assert.False(t, EntityKind("school").IsValid())

	assert.Equal(t, "companies", KindCompany.Plural())
	assert.Equal(t, "businesses", KindBusiness.Plural())
}

func TestOutcome(t *testing.T) {
	assert.True(t, OutcomeSuccess.Terminal())
	assert.True(t, OutcomeSkipped.Terminal())
	assert.True(t, OutcomeNotFound.Terminal())
	assert.False(t, OutcomeRateLimited.Terminal())
	assert.False(t, OutcomeParseFailed.Terminal())
	assert.False(t, OutcomeNetwork.Terminal())

	assert.Equal(t, "unset", OutcomeUnset.String())
	assert.Equal(t, "rate_limited", OutcomeRateLimited.String())
}
