package badge

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awardFor(t *testing.T, c *Catalog, slug string, at time.Time, notified bool) Award {
	t.Helper()
	d, ok := c.BySlug(slug)
	require.True(t, ok, slug)
	return Award{ID: uuid.New(), BadgeID: d.ID, EarnedAt: at, Notified: notified}
}

func TestBuildStats_RarityInvariant(t *testing.T) {
	c := defaultCatalog(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	awards := []Award{
		awardFor(t, c, "first_step", base, true),
		awardFor(t, c, "active_reporter", base.Add(time.Hour), false),
		awardFor(t, c, "trending_voice", base.Add(2*time.Hour), false),
	}

	stats := BuildStats(c, awards, Snapshot{TotalComplaints: 3, MaxSingleComplaintLikes: 50})

	require.Len(t, stats.RarityStats, len(Rarities))
	total, earned := 0, 0
	for _, r := range Rarities {
		rc, ok := stats.RarityStats[r]
		require.True(t, ok, r)
		total += rc.Total
		earned += rc.Earned
	}
	assert.Equal(t, stats.TotalBadges, total)
	assert.Equal(t, stats.EarnedCount, earned)

	assert.Equal(t, 21, stats.TotalBadges)
	assert.Equal(t, 3, stats.EarnedCount)
	assert.Equal(t, 14, stats.Percentage)
	assert.Equal(t, RarityCount{Total: 6, Earned: 2}, stats.RarityStats[RarityCommon])
	assert.Equal(t, RarityCount{Total: 3, Earned: 1}, stats.RarityStats[RarityRare])
	assert.Equal(t, RarityCount{Total: 2, Earned: 0}, stats.RarityStats[RarityLegendary])
	assert.Empty(t, stats.Warnings)
}

func TestBuildStats_RecentBadgesAreUnnotifiedNewestFirst(t *testing.T) {
	c := defaultCatalog(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	awards := []Award{
		awardFor(t, c, "first_step", base, false),
		awardFor(t, c, "appreciated", base.Add(time.Minute), true),
		awardFor(t, c, "problem_identified", base.Add(2*time.Minute), false),
	}

	stats := BuildStats(c, awards, Snapshot{})

	require.Len(t, stats.RecentBadges, 2)
	assert.Equal(t, "problem_identified", stats.RecentBadges[0].Slug)
	assert.Equal(t, "first_step", stats.RecentBadges[1].Slug)
}

func TestBuildStats_UnknownBadgeIsSkipped(t *testing.T) {
	c := defaultCatalog(t)
	stray := Award{ID: uuid.New(), BadgeID: uuid.New(), EarnedAt: time.Now()}
	awards := []Award{
		awardFor(t, c, "first_step", time.Now(), false),
		stray,
	}

	stats := BuildStats(c, awards, Snapshot{TotalComplaints: 1})

	assert.Equal(t, 1, stats.EarnedCount)
	require.Len(t, stats.Warnings, 1)
	assert.Contains(t, stats.Warnings[0], stray.BadgeID.String())
	assert.Len(t, stats.RecentBadges, 1)
}

func TestBuildStats_EmptyCatalog(t *testing.T) {
	c, err := NewCatalog(nil)
	require.NoError(t, err)

	stats := BuildStats(c, nil, Snapshot{TotalComplaints: 4})

	assert.Equal(t, 0, stats.TotalBadges)
	assert.Equal(t, 0, stats.Percentage)
	assert.Len(t, stats.RarityStats, len(Rarities))
	assert.Equal(t, 100, stats.Progress.Filing.Percentage)
	assert.Nil(t, stats.Progress.Filing.Next)
}

func TestBuildStats_ProgressFromLedger(t *testing.T) {
	c := defaultCatalog(t)
	awards := []Award{awardFor(t, c, "first_step", time.Now(), true)}

	// active_reporter is due but not yet recorded, so it is still next.
	stats := BuildStats(c, awards, Snapshot{TotalComplaints: 3})

	require.NotNil(t, stats.Progress.Filing.Next)
	assert.Equal(t, 3, *stats.Progress.Filing.Next)
	assert.Equal(t, 100, stats.Progress.Filing.Percentage)
}

func TestResolveAwards_DeduplicatesBySlug(t *testing.T) {
	c := defaultCatalog(t)
	now := time.Now()
	a := awardFor(t, c, "fixer", now, false)
	dup := a
	dup.ID = uuid.New()
	dup.EarnedAt = now.Add(-time.Hour)

	earned, warnings := ResolveAwards(c, []Award{a, dup})

	assert.Len(t, earned, 1)
	assert.Empty(t, warnings)
}

func TestBuildOverview(t *testing.T) {
	c := defaultCatalog(t)
	at := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	awards := []Award{awardFor(t, c, "first_step", at, false)}

	ov := BuildOverview(c, awards, Snapshot{TotalComplaints: 2})

	assert.Equal(t, 21, ov.TotalBadges)
	assert.Equal(t, 1, ov.EarnedCount)
	assert.Len(t, ov.Badges, 21)
	assert.Len(t, ov.Grouped[CategoryFiling], 6)
	assert.Len(t, ov.Grouped[CategoryEngagement], 5)
	assert.Len(t, ov.Grouped[CategoryResolution], 5)
	assert.Len(t, ov.Grouped[CategoryCategorySpecialist], 5)

	first := ov.Badges[0]
	assert.Equal(t, "first_step", first.Slug)
	assert.True(t, first.Earned)
	require.NotNil(t, first.EarnedAt)
	assert.True(t, at.Equal(*first.EarnedAt))
	assert.Equal(t, 100, first.Percentage)

	second := ov.Badges[1]
	assert.Equal(t, "active_reporter", second.Slug)
	assert.False(t, second.Earned)
	assert.Nil(t, second.EarnedAt)
	assert.Equal(t, 66, second.Percentage)
}
