package badge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryFiling             Category = "FILING"
	CategoryEngagement         Category = "ENGAGEMENT"
	CategoryResolution         Category = "RESOLUTION"
	CategoryCategorySpecialist Category = "CATEGORY_SPECIALIST"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryFiling,
	CategoryEngagement,
	CategoryResolution,
	CategoryCategorySpecialist,
}

type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityUncommon  Rarity = "UNCOMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

var Rarities = []Rarity{
	RarityCommon,
	RarityUncommon,
	RarityRare,
	RarityEpic,
	RarityLegendary,
}

// Metric names the snapshot counter a definition is measured against.
type Metric string

const (
	MetricComplaints           Metric = "complaints"
	MetricResolved             Metric = "resolved"
	MetricLikesReceived        Metric = "likes_received"
	MetricSingleComplaintLikes Metric = "single_complaint_likes"
	MetricDepartment           Metric = "department"
)

// DefaultMetric is the metric used by a category when a definition leaves it empty.
func DefaultMetric(c Category) Metric {
	switch c {
	case CategoryFiling:
		return MetricComplaints
	case CategoryEngagement:
		return MetricLikesReceived
	case CategoryResolution:
		return MetricResolved
	case CategoryCategorySpecialist:
		return MetricDepartment
	}
	return ""
}

var (
	ErrSnapshotUnavailable = errors.New("activity snapshot unavailable")
	ErrInvalidCatalog      = errors.New("invalid badge catalog")
	ErrUnknownBadge        = errors.New("unknown badge")
	ErrUserNotFound        = errors.New("user not found")
)

type Definition struct {
	ID          uuid.UUID `json:"id" db:"id" yaml:"id"`
	Slug        string    `json:"slug" db:"slug" yaml:"slug" validate:"required,max=64"`
	Name        string    `json:"name" db:"name" yaml:"name" validate:"required"`
	Description string    `json:"description" db:"description" yaml:"description"`
	Icon        string    `json:"icon" db:"icon" yaml:"icon"`
	Category    Category  `json:"category" db:"category" yaml:"category" validate:"required,oneof=FILING ENGAGEMENT RESOLUTION CATEGORY_SPECIALIST"`
	Rarity      Rarity    `json:"rarity" db:"rarity" yaml:"rarity" validate:"required,oneof=COMMON UNCOMMON RARE EPIC LEGENDARY"`
	Threshold   int       `json:"threshold" db:"threshold" yaml:"threshold" validate:"gte=0"`
	Metric      Metric    `json:"metric,omitempty" db:"metric" yaml:"metric" validate:"omitempty,oneof=complaints resolved likes_received single_complaint_likes department"`
	Departments []string  `json:"departments,omitempty" db:"departments" yaml:"departments"`
	CreatedAt   time.Time `json:"created_at" db:"created_at" yaml:"-"`
}

// EffectiveMetric resolves an empty Metric to the category default.
func (d Definition) EffectiveMetric() Metric {
	if d.Metric != "" {
		return d.Metric
	}
	return DefaultMetric(d.Category)
}

// Snapshot is the point-in-time activity summary of one user.
type Snapshot struct {
	TotalComplaints         int            `json:"totalComplaints"`
	ResolvedComplaints      int            `json:"resolvedComplaints"`
	TotalLikesReceived      int            `json:"totalLikesReceived"`
	MaxSingleComplaintLikes int            `json:"maxSingleComplaintLikes"`
	CategoryCountMap        map[string]int `json:"categoryCountMap"`
}

type Award struct {
	ID       uuid.UUID `json:"id" db:"id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	BadgeID  uuid.UUID `json:"badge_id" db:"badge_id"`
	EarnedAt time.Time `json:"earned_at" db:"earned_at"`
	Notified bool      `json:"notified" db:"notified"`
}

type WithStatus struct {
	Definition
	Earned     bool       `json:"earned"`
	EarnedAt   *time.Time `json:"earned_at,omitempty"`
	Percentage int        `json:"percentage"`
}

type Earned struct {
	Definition
	EarnedAt time.Time `json:"earned_at"`
	Notified bool      `json:"notified"`
}

type ProgressView struct {
	Current    int     `json:"current"`
	Next       *int    `json:"next"`
	Percentage int     `json:"percentage"`
	NextBadge  *string `json:"next_badge"`
}

type ProgressSet struct {
	Filing     ProgressView `json:"filing"`
	Engagement ProgressView `json:"engagement"`
	Resolution ProgressView `json:"resolution"`
}

type RarityCount struct {
	Total  int `json:"total"`
	Earned int `json:"earned"`
}

type Stats struct {
	TotalBadges  int                    `json:"total_badges"`
	EarnedCount  int                    `json:"earned_count"`
	Percentage   int                    `json:"percentage"`
	UserStats    Snapshot               `json:"user_stats"`
	Progress     ProgressSet            `json:"progress"`
	RarityStats  map[Rarity]RarityCount `json:"rarity_stats"`
	RecentBadges []Earned               `json:"recent_badges"`
	Warnings     []string               `json:"-"`
}

// Overview is the all-badges view: every definition with its earned flag.
type Overview struct {
	Badges      []WithStatus              `json:"badges"`
	Grouped     map[Category][]WithStatus `json:"grouped"`
	TotalBadges int                       `json:"total_badges"`
	EarnedCount int                       `json:"earned_count"`
}

type SnapshotProvider interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (Snapshot, error)
}

// Ledger records awards. TryAward must be an atomic insert-if-absent on
// (userID, badgeID); it reports true only for the caller that created the row.
type Ledger interface {
	TryAward(ctx context.Context, userID, badgeID uuid.UUID) (bool, error)
	ListEarned(ctx context.Context, userID uuid.UUID) ([]Award, error)
	MarkNotified(ctx context.Context, userID, badgeID uuid.UUID) error
	MarkAllNotified(ctx context.Context, userID uuid.UUID) (int64, error)
}

type CatalogSource interface {
	LoadDefinitions(ctx context.Context) ([]Definition, error)
}

type CatalogSyncer interface {
	SyncDefinitions(ctx context.Context, defs []Definition) error
}

type UserResolver interface {
	ResolveUser(ctx context.Context, clerkID string) (uuid.UUID, error)
}
