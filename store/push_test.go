package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferLatest_DeliversWhenBufferHasRoom(t *testing.T) {
	ch := make(chan int, 2)

	require.True(t, OfferLatest(ch, 1))
	assert.Equal(t, 1, <-ch)
}

func TestOfferLatest_EvictsOldestWhenFull(t *testing.T) {
	ch := make(chan int, 2)
	require.True(t, OfferLatest(ch, 1))
	require.True(t, OfferLatest(ch, 2))

	require.True(t, OfferLatest(ch, 3))

	assert.Equal(t, 2, <-ch)
	assert.Equal(t, 3, <-ch, "the newest value survives, the oldest is evicted")
}

func TestOfferLatest_RepeatedOverflowKeepsMostRecent(t *testing.T) {
	ch := make(chan int, 1)
	for i := 1; i <= 10; i++ {
		require.True(t, OfferLatest(ch, i))
	}
	assert.Equal(t, 10, <-ch)
}
