package cachestate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryIsStaleMonotonic(t *testing.T) {
	now := time.Now()
	e := NewEntry("u1", now, nil).MarkStale(now)

	assert.True(t, e.IsStale(now))
	assert.True(t, e.IsStale(now.Add(time.Hour)))
}

func TestEntryRefreshClearsStale(t *testing.T) {
	now := time.Now()
	e := NewEntry("u1", now, nil).MarkStale(now)
	refreshed := e.Refresh(now.Add(time.Minute))

	assert.False(t, refreshed.IsStale(now.Add(time.Hour)))
}

func TestTagIndexBidirectionalConsistency(t *testing.T) {
	idx := NewTagIndex[string]()
	idx.Add("u1", []string{"premium", "team-a"})
	idx.Add("u2", []string{"team-a"})

	assert.ElementsMatch(t, []string{"premium", "team-a"}, idx.TagsOf("u1"))
	assert.ElementsMatch(t, []string{"u1", "u2"}, idx.IDsOf("team-a"))

	idx.RemoveTags("u1", []string{"premium"})
	assert.ElementsMatch(t, []string{"team-a"}, idx.TagsOf("u1"))
	assert.NotContains(t, idx.IDsOf("premium"), "u1")

	idx.RemoveID("u2")
	assert.Empty(t, idx.TagsOf("u2"))
	assert.NotContains(t, idx.IDsOf("team-a"), "u2")
}

func TestTagIndexByAnyByAll(t *testing.T) {
	idx := NewTagIndex[string]()
	idx.Add("a", []string{"x", "y"})
	idx.Add("b", []string{"y"})
	idx.Add("c", []string{"x"})

	assert.ElementsMatch(t, []string{"a", "b", "c"}, idx.ByAny([]string{"x", "y"}))
	assert.ElementsMatch(t, []string{"a"}, idx.ByAll([]string{"x", "y"}))
	assert.Empty(t, idx.ByAll(nil))
}

func TestStoreInvalidateByTags(t *testing.T) {
	store := NewStore[string]()
	now := time.Now()

	store.Save("u1", now, []string{"premium", "team-a"})
	store.Save("u2", now, []string{"team-a"})

	later := now.Add(time.Minute)
	affected := store.InvalidateByTags([]string{"team-a"}, later)
	assert.ElementsMatch(t, []string{"u1", "u2"}, affected)

	u1, ok := store.Get("u1")
	require.True(t, ok)
	assert.True(t, u1.IsStale(later))
	assert.Contains(t, store.Tags("u1"), "premium")

	u2, ok := store.Get("u2")
	require.True(t, ok)
	assert.True(t, u2.IsStale(later))

	// Invalidation never removes tags or entries.
	assert.ElementsMatch(t, []string{"premium", "team-a"}, store.Tags("u1"))
}

func TestStatsFrom(t *testing.T) {
	now := time.Now()
	entries := []Entry[string]{
		NewEntry("a", now, []string{"x"}),
		NewEntry("b", now, []string{"x", "y"}).MarkStale(now),
		NewEntry("c", now, []string{"y"}),
	}

	stats := StatsFrom(entries, now)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Stale)
	assert.Equal(t, 2, stats.Fresh())
	assert.InDelta(t, 33.33, stats.StalePct(), 0.01)
	assert.Equal(t, 2, stats.TagCounts["x"])
	assert.Equal(t, 2, stats.TagCounts["y"])
}

func TestStatsFromEmpty(t *testing.T) {
	stats := StatsFrom[string](nil, time.Now())
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, float64(0), stats.StalePct())
}
