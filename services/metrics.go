package services

import (
	"civicBadgesAPI/internal/badge"

	"github.com/prometheus/client_golang/prometheus"
)

// BadgeMetrics holds the engine counters. A nil *BadgeMetrics records nothing.
type BadgeMetrics struct {
	awarded     *prometheus.CounterVec
	conflicts   prometheus.Counter
	evaluations *prometheus.CounterVec
	catalogSize prometheus.Gauge
}

// NewBadgeMetrics creates the badge metrics and registers them with reg.
func NewBadgeMetrics(reg prometheus.Registerer) *BadgeMetrics {
	m := &BadgeMetrics{
		awarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badges_awarded_total",
				Help: "Total number of badges awarded",
			},
			[]string{"category", "rarity"},
		),
		conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "badge_award_conflicts_total",
				Help: "Awards skipped because another caller recorded them first",
			},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badge_evaluations_total",
				Help: "Badge evaluations by result",
			},
			[]string{"result"},
		),
		catalogSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "badge_catalog_size",
				Help: "Number of badge definitions in the active catalog",
			},
		),
	}
	reg.MustRegister(m.awarded, m.conflicts, m.evaluations, m.catalogSize)
	return m
}

func (m *BadgeMetrics) awardedBadge(d badge.Definition) {
	if m == nil {
		return
	}
	m.awarded.WithLabelValues(string(d.Category), string(d.Rarity)).Inc()
}

func (m *BadgeMetrics) conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *BadgeMetrics) evaluation(result string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(result).Inc()
}

func (m *BadgeMetrics) catalogLoaded(n int) {
	if m == nil {
		return
	}
	m.catalogSize.Set(float64(n))
}
