package testutils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicSource_IDs(t *testing.T) {
	src := NewDeterministicSource()

	assert.Equal(t, "00000001-0000-4000-8000-000000000001", src.NewID())
	assert.Equal(t, "00000002-0000-4000-8000-000000000002", src.NewID())

	src.Reset()
	assert.Equal(t, "00000001-0000-4000-8000-000000000001", src.NewID())
}

func TestDeterministicSource_IDsAreValidUUIDs(t *testing.T) {
	src := NewDeterministicSource()
	for i := 0; i < 5; i++ {
		_, err := uuid.Parse(src.NewID())
		require.NoError(t, err)
	}
}

func TestDeterministicSource_Now(t *testing.T) {
	src := NewDeterministicSource()

	first := src.Now()
	second := src.Now()

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC), first)
	assert.Equal(t, time.Second, second.Sub(first))
}

func TestNewSource(t *testing.T) {
	_, isDeterministic := NewSource(true).(*DeterministicSource)
	assert.True(t, isDeterministic)

	_, isRandom := NewSource(false).(RandomSource)
	assert.True(t, isRandom)
}

func TestRandomSource_UniqueIDs(t *testing.T) {
	src := RandomSource{}
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := src.NewID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestEpochMillis(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 1, 500_000_000, time.UTC)
	assert.Equal(t, int64(1735689601500), EpochMillis(ts))
}
