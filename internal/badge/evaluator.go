package badge

import (
	"math"
	"sort"
	"strings"
)

// Evaluation is the outcome of one evaluation run.
type Evaluation struct {
	ToAward  []Definition `json:"to_award"`
	Progress ProgressSet  `json:"progress"`
}

// Evaluate returns every definition the snapshot qualifies for that is not in
// earned, and the progress of each track once those awards are committed.
// It has no side effects.
func Evaluate(catalog *Catalog, snap Snapshot, earned map[string]bool) Evaluation {
	var eval Evaluation

	after := make(map[string]bool, len(earned))
	for slug, ok := range earned {
		if ok {
			after[slug] = true
		}
	}

	for _, d := range catalog.All() {
		if earned[d.Slug] {
			continue
		}
		if Qualifies(d, snap) {
			eval.ToAward = append(eval.ToAward, d)
			after[d.Slug] = true
		}
	}

	eval.Progress = TrackProgress(catalog, snap, after)
	return eval
}

// Qualifies reports whether snap meets the threshold of d.
func Qualifies(d Definition, snap Snapshot) bool {
	if d.Threshold <= 0 {
		return true
	}
	if d.EffectiveMetric() == MetricDepartment {
		_, ok := SpecialistDepartment(d, snap)
		return ok
	}
	return MetricValue(d, snap) >= d.Threshold
}

// MetricValue is the snapshot counter d is measured against. For department
// badges it is the highest count among the departments in scope.
func MetricValue(d Definition, snap Snapshot) int {
	switch d.EffectiveMetric() {
	case MetricComplaints:
		return snap.TotalComplaints
	case MetricResolved:
		return snap.ResolvedComplaints
	case MetricLikesReceived:
		return snap.TotalLikesReceived
	case MetricSingleComplaintLikes:
		return snap.MaxSingleComplaintLikes
	case MetricDepartment:
		best := 0
		for dep, n := range snap.CategoryCountMap {
			if inScope(d, dep) && n > best {
				best = n
			}
		}
		return best
	}
	return 0
}

// SpecialistDepartment returns the first department, by name, whose count
// meets the threshold of d.
func SpecialistDepartment(d Definition, snap Snapshot) (string, bool) {
	names := make([]string, 0, len(snap.CategoryCountMap))
	for dep := range snap.CategoryCountMap {
		names = append(names, dep)
	}
	sort.Strings(names)

	for _, dep := range names {
		if inScope(d, dep) && snap.CategoryCountMap[dep] >= d.Threshold {
			return dep, true
		}
	}
	return "", false
}

func inScope(d Definition, department string) bool {
	if len(d.Departments) == 0 {
		return true
	}
	department = strings.ToUpper(strings.TrimSpace(department))
	for _, dep := range d.Departments {
		if dep == department {
			return true
		}
	}
	return false
}

// TrackProgress computes the filing, engagement and resolution progress views.
func TrackProgress(catalog *Catalog, snap Snapshot, earned map[string]bool) ProgressSet {
	return ProgressSet{
		Filing:     progressFor(catalog.Ladder(CategoryFiling, MetricComplaints), snap.TotalComplaints, earned),
		Engagement: progressFor(catalog.Ladder(CategoryEngagement, MetricLikesReceived), snap.TotalLikesReceived, earned),
		Resolution: progressFor(catalog.Ladder(CategoryResolution, MetricResolved), snap.ResolvedComplaints, earned),
	}
}

func progressFor(ladder []Definition, current int, earned map[string]bool) ProgressView {
	view := ProgressView{Current: current, Percentage: 100}
	for _, d := range ladder {
		if earned[d.Slug] {
			continue
		}
		next := d.Threshold
		name := d.Name
		view.Next = &next
		view.NextBadge = &name
		view.Percentage = Percentage(current, next)
		break
	}
	return view
}

// DefinitionProgress is the percentage of the way snap is toward d.
func DefinitionProgress(d Definition, snap Snapshot) int {
	return Percentage(MetricValue(d, snap), d.Threshold)
}

// Percentage returns floor(current/target*100) clamped to [0, 100]. A zero
// target is always complete.
func Percentage(current, target int) int {
	if target <= 0 {
		return 100
	}
	p := int(math.Floor(float64(current) * 100 / float64(target)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
