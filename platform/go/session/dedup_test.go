package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeduplicatorDropsRepeatsInsideWindow(t *testing.T) {
	clock := newFakeClock()
	d := NewDeduplicatorWithClock(2*time.Second, 25, clock.Now)

	require.True(t, d.Allow("token-refreshed"))
	require.False(t, d.Allow("token-refreshed"))

	clock.Advance(500 * time.Millisecond)
	require.False(t, d.Allow("token-refreshed"))

	clock.Advance(2 * time.Second)
	require.True(t, d.Allow("token-refreshed"))
}

func TestDeduplicatorDistinctEventsPass(t *testing.T) {
	clock := newFakeClock()
	d := NewDeduplicatorWithClock(2*time.Second, 25, clock.Now)

	require.True(t, d.Allow("token-refreshed"))
	require.True(t, d.Allow("sign-out"))
}

func TestDeduplicatorEvictsOldestAtCapacity(t *testing.T) {
	clock := newFakeClock()
	d := NewDeduplicatorWithClock(time.Minute, 3, clock.Now)

	require.True(t, d.Allow("a"))
	clock.Advance(time.Second)
	require.True(t, d.Allow("b"))
	clock.Advance(time.Second)
	require.True(t, d.Allow("c"))
	clock.Advance(time.Second)

	// "d" forces eviction of "a", the stalest entry.
	require.True(t, d.Allow("d"))
	require.True(t, d.Allow("a"), "evicted entry is treated as unseen")
	require.False(t, d.Allow("b"), "surviving entry still suppressed")
}

func TestDeduplicatorWrapForwardsAdmittedEvents(t *testing.T) {
	clock := newFakeClock()
	d := NewDeduplicatorWithClock(2*time.Second, 25, clock.Now)

	var got []string
	sink := d.Wrap(func(event string) { got = append(got, event) })

	sink("token-refreshed")
	sink("token-refreshed")
	clock.Advance(3 * time.Second)
	sink("token-refreshed")

	require.Equal(t, []string{"token-refreshed", "token-refreshed"}, got)
}
