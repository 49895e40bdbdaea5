package badge

import (
	"fmt"
	"sort"
	"time"
)

// BuildStats aggregates the catalog, the user's awards and a fresh snapshot.
// Awards that reference a badge missing from the catalog are skipped and
// reported in Warnings.
func BuildStats(catalog *Catalog, awards []Award, snap Snapshot) Stats {
	stats := Stats{
		TotalBadges: catalog.Len(),
		UserStats:   snap,
		RarityStats: make(map[Rarity]RarityCount, len(Rarities)),
	}
	for _, r := range Rarities {
		stats.RarityStats[r] = RarityCount{}
	}
	for _, d := range catalog.All() {
		rc := stats.RarityStats[d.Rarity]
		rc.Total++
		stats.RarityStats[d.Rarity] = rc
	}

	earned, warnings := ResolveAwards(catalog, awards)
	stats.Warnings = warnings

	slugs := make(map[string]bool, len(earned))
	for _, e := range earned {
		slugs[e.Slug] = true
		rc := stats.RarityStats[e.Rarity]
		rc.Earned++
		stats.RarityStats[e.Rarity] = rc
		if !e.Notified {
			stats.RecentBadges = append(stats.RecentBadges, e)
		}
	}
	stats.EarnedCount = len(earned)
	if stats.TotalBadges > 0 {
		stats.Percentage = Percentage(stats.EarnedCount, stats.TotalBadges)
	}

	stats.Progress = TrackProgress(catalog, snap, slugs)
	return stats
}

// ResolveAwards joins awards with their definitions, newest first. The
// returned warnings describe awards whose badge is not in the catalog.
func ResolveAwards(catalog *Catalog, awards []Award) ([]Earned, []string) {
	var (
		out      []Earned
		warnings []string
		seen     = make(map[string]bool, len(awards))
	)
	for _, a := range awards {
		d, ok := catalog.ByID(a.BadgeID)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("award %s references unknown badge %s", a.ID, a.BadgeID))
			continue
		}
		if seen[d.Slug] {
			continue
		}
		seen[d.Slug] = true
		out = append(out, Earned{Definition: d, EarnedAt: a.EarnedAt, Notified: a.Notified})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.After(out[j].EarnedAt)
		}
		return lessDefinition(out[i].Definition, out[j].Definition)
	})
	return out, warnings
}

// BuildOverview lists every definition with its earned flag, grouped by
// category.
func BuildOverview(catalog *Catalog, awards []Award, snap Snapshot) Overview {
	earnedAt := make(map[string]time.Time, len(awards))
	earned, _ := ResolveAwards(catalog, awards)
	for _, e := range earned {
		earnedAt[e.Slug] = e.EarnedAt
	}

	ov := Overview{
		Grouped:     make(map[Category][]WithStatus, len(Categories)),
		TotalBadges: catalog.Len(),
	}
	for _, c := range Categories {
		ov.Grouped[c] = []WithStatus{}
	}

	for _, d := range catalog.All() {
		ws := WithStatus{Definition: d, Percentage: DefinitionProgress(d, snap)}
		if t, ok := earnedAt[d.Slug]; ok {
			t := t
			ws.Earned = true
			ws.EarnedAt = &t
			ws.Percentage = 100
			ov.EarnedCount++
		}
		ov.Badges = append(ov.Badges, ws)
		ov.Grouped[d.Category] = append(ov.Grouped[d.Category], ws)
	}
	return ov
}

// EarnedSlugs is the set of slugs in awards that resolve to the catalog.
func EarnedSlugs(catalog *Catalog, awards []Award) map[string]bool {
	out := make(map[string]bool, len(awards))
	for _, a := range awards {
		if d, ok := catalog.ByID(a.BadgeID); ok {
			out[d.Slug] = true
		}
	}
	return out
}
