package badge

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := defaultCatalog(t)

	assert.Equal(t, 21, c.Len())

	for _, d := range c.All() {
		assert.Equal(t, DefinitionID(d.Slug), d.ID, d.Slug)
	}

	filing := c.Ladder(CategoryFiling, MetricComplaints)
	var thresholds []int
	for _, d := range filing {
		thresholds = append(thresholds, d.Threshold)
	}
	assert.Equal(t, []int{1, 3, 15, 50, 100, 250}, thresholds)

	road, ok := c.BySlug("road_warrior")
	require.True(t, ok)
	assert.Equal(t, []string{"INFRASTRUCTURE", "TRANSPORTATION"}, road.Departments)
	assert.Equal(t, MetricDepartment, road.EffectiveMetric())

	byID, ok := c.ByID(road.ID)
	require.True(t, ok)
	assert.Equal(t, "road_warrior", byID.Slug)
}

func TestNewCatalog_Rejects(t *testing.T) {
	valid := func(slug string, threshold int) Definition {
		return Definition{Slug: slug, Name: slug, Category: CategoryFiling, Rarity: RarityCommon, Threshold: threshold}
	}

	tests := []struct {
		name string
		defs []Definition
		msg  string
	}{
		{
			name: "duplicate slug",
			defs: []Definition{valid("a", 1), valid("a", 2)},
			msg:  "duplicate slug",
		},
		{
			name: "duplicate threshold in ladder",
			defs: []Definition{valid("a", 5), valid("b", 5)},
			msg:  "share threshold",
		},
		{
			name: "duplicate id",
			defs: func() []Definition {
				a, b := valid("a", 1), valid("b", 2)
				id := uuid.New()
				a.ID, b.ID = id, id
				return []Definition{a, b}
			}(),
			msg: "share id",
		},
		{
			name: "unknown category",
			defs: []Definition{{Slug: "a", Name: "a", Category: "BRAVERY", Rarity: RarityCommon, Threshold: 1}},
			msg:  "badge \"a\"",
		},
		{
			name: "negative threshold",
			defs: []Definition{valid("a", -1)},
			msg:  "badge \"a\"",
		},
		{
			name: "departments on a count metric",
			defs: func() []Definition {
				d := valid("a", 1)
				d.Departments = []string{"HEALTH"}
				return []Definition{d}
			}(),
			msg: "lists departments",
		},
		{
			name: "missing name",
			defs: []Definition{{Slug: "a", Category: CategoryFiling, Rarity: RarityCommon, Threshold: 1}},
			msg:  "badge \"a\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCatalog(tt.defs)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewCatalog_SeparateLaddersShareThresholds(t *testing.T) {
	defs := []Definition{
		{Slug: "likes", Name: "Likes", Category: CategoryEngagement, Rarity: RarityRare, Threshold: 50},
		{Slug: "one_hit", Name: "One hit", Category: CategoryEngagement, Rarity: RarityRare, Threshold: 50, Metric: MetricSingleComplaintLikes},
		{Slug: "water", Name: "Water", Category: CategoryCategorySpecialist, Rarity: RarityUncommon, Threshold: 5, Departments: []string{"water"}},
		{Slug: "power", Name: "Power", Category: CategoryCategorySpecialist, Rarity: RarityUncommon, Threshold: 5, Departments: []string{" POWER "}},
	}

	c, err := NewCatalog(defs)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())

	water, _ := c.BySlug("water")
	assert.Equal(t, []string{"WATER"}, water.Departments)
	power, _ := c.BySlug("power")
	assert.Equal(t, []string{"POWER"}, power.Departments)
}

func TestNewCatalog_SameDepartmentsShareOneLadder(t *testing.T) {
	defs := []Definition{
		{Slug: "a", Name: "A", Category: CategoryCategorySpecialist, Rarity: RarityUncommon, Threshold: 5, Departments: []string{"HEALTH", "ENVIRONMENT"}},
		{Slug: "b", Name: "B", Category: CategoryCategorySpecialist, Rarity: RarityUncommon, Threshold: 5, Departments: []string{"environment", "health"}},
	}

	_, err := NewCatalog(defs)
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestCatalog_NilSafe(t *testing.T) {
	var c *Catalog
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.All())
	_, ok := c.BySlug("first_step")
	assert.False(t, ok)

	eval := Evaluate(c, Snapshot{TotalComplaints: 10}, nil)
	assert.Empty(t, eval.ToAward)
	assert.Nil(t, eval.Progress.Filing.Next)
}

func TestCatalogHolder_Swap(t *testing.T) {
	first := filingCatalog(t, 1)
	second := filingCatalog(t, 1, 2)

	h := NewCatalogHolder(first)
	assert.Same(t, first, h.Load())

	h.Store(second)
	assert.Same(t, second, h.Load())
	assert.Equal(t, 2, h.Load().Len())
}

func TestDecodeDefinitions(t *testing.T) {
	doc := `
badges:
  - slug: night_owl
    name: Night Owl
    category: FILING
    rarity: RARE
    threshold: 7
`
	defs, err := DecodeDefinitions(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "night_owl", defs[0].Slug)
	assert.Equal(t, RarityRare, defs[0].Rarity)
	assert.Equal(t, 7, defs[0].Threshold)

	_, err = DecodeDefinitions(strings.NewReader("badges:\n  - slug: x\n    colour: red\n"))
	assert.Error(t, err)
}

func TestLoadDefinitionsFile_DefaultsWhenEmpty(t *testing.T) {
	defs, err := LoadDefinitionsFile("")
	require.NoError(t, err)
	assert.Len(t, defs, 21)

	_, err = LoadDefinitionsFile(t.TempDir() + "/missing.yaml")
	assert.Error(t, err)
}
