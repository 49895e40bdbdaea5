package badge

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Catalog is an immutable, validated set of badge definitions.
type Catalog struct {
	defs   []Definition
	bySlug map[string]int
	byID   map[uuid.UUID]int
}

// DefinitionID derives the stable id used for a slug when none is supplied.
func DefinitionID(slug string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("badge:"+slug))
}

// NewCatalog validates defs and returns them as a catalog ordered by
// category, threshold and slug. Thresholds must be distinct within a ladder.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:   make([]Definition, 0, len(defs)),
		bySlug: make(map[string]int, len(defs)),
		byID:   make(map[uuid.UUID]int, len(defs)),
	}

	seenSlug := make(map[string]bool, len(defs))
	seenID := make(map[uuid.UUID]string, len(defs))
	ladders := make(map[string]map[int]string)

	for _, d := range defs {
		d.Slug = strings.TrimSpace(d.Slug)
		if err := validate.Struct(d); err != nil {
			return nil, fmt.Errorf("%w: badge %q: %v", ErrInvalidCatalog, d.Slug, err)
		}
		if seenSlug[d.Slug] {
			return nil, fmt.Errorf("%w: duplicate slug %q", ErrInvalidCatalog, d.Slug)
		}
		seenSlug[d.Slug] = true

		if d.ID == uuid.Nil {
			d.ID = DefinitionID(d.Slug)
		}
		if other, ok := seenID[d.ID]; ok {
			return nil, fmt.Errorf("%w: badges %q and %q share id %s", ErrInvalidCatalog, other, d.Slug, d.ID)
		}
		seenID[d.ID] = d.Slug

		if len(d.Departments) > 0 && d.EffectiveMetric() != MetricDepartment {
			return nil, fmt.Errorf("%w: badge %q lists departments but measures %s", ErrInvalidCatalog, d.Slug, d.EffectiveMetric())
		}
		d.Departments = normalizeDepartments(d.Departments)

		key := ladderKey(d)
		if ladders[key] == nil {
			ladders[key] = make(map[int]string)
		}
		if other, ok := ladders[key][d.Threshold]; ok {
			return nil, fmt.Errorf("%w: badges %q and %q share threshold %d", ErrInvalidCatalog, other, d.Slug, d.Threshold)
		}
		ladders[key][d.Threshold] = d.Slug

		c.defs = append(c.defs, d)
	}

	sort.SliceStable(c.defs, func(i, j int) bool {
		return lessDefinition(c.defs[i], c.defs[j])
	})
	for i, d := range c.defs {
		c.bySlug[d.Slug] = i
		c.byID[d.ID] = i
	}
	return c, nil
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.defs)
}

// All returns a copy of every definition in catalog order.
func (c *Catalog) All() []Definition {
	if c == nil {
		return nil
	}
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

func (c *Catalog) BySlug(slug string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	i, ok := c.bySlug[slug]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

func (c *Catalog) ByID(id uuid.UUID) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Ladder returns the definitions of one category measured by metric with no
// department scope, ascending by threshold.
func (c *Catalog) Ladder(category Category, metric Metric) []Definition {
	if c == nil {
		return nil
	}
	var out []Definition
	for _, d := range c.defs {
		if d.Category == category && d.EffectiveMetric() == metric && len(d.Departments) == 0 {
			out = append(out, d)
		}
	}
	return out
}

// CatalogHolder owns the current catalog and swaps it atomically on reload.
type CatalogHolder struct {
	current atomic.Pointer[Catalog]
}

func NewCatalogHolder(c *Catalog) *CatalogHolder {
	h := &CatalogHolder{}
	h.current.Store(c)
	return h
}

func (h *CatalogHolder) Load() *Catalog {
	return h.current.Load()
}

func (h *CatalogHolder) Store(c *Catalog) {
	h.current.Store(c)
}

func lessDefinition(a, b Definition) bool {
	if ca, cb := categoryRank(a.Category), categoryRank(b.Category); ca != cb {
		return ca < cb
	}
	if a.Threshold != b.Threshold {
		return a.Threshold < b.Threshold
	}
	return a.Slug < b.Slug
}

func categoryRank(c Category) int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return len(Categories)
}

func ladderKey(d Definition) string {
	return string(d.Category) + "|" + string(d.EffectiveMetric()) + "|" + strings.Join(d.Departments, ",")
}

func normalizeDepartments(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, dep := range in {
		dep = strings.ToUpper(strings.TrimSpace(dep))
		if dep == "" || seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}
