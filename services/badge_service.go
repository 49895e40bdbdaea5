package services

import (
	"context"
	"errors"
	"fmt"

	"civicBadgesAPI/internal/badge"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BadgeStore is everything the badge service needs from storage. The
// postgres, sqlite and memory stores all satisfy it.
type BadgeStore interface {
	badge.SnapshotProvider
	badge.Ledger
	badge.CatalogSource
	badge.CatalogSyncer
	badge.UserResolver
}

// AwardNotifier is told about every badge a user newly earns.
type AwardNotifier interface {
	BadgeEarned(ctx context.Context, userID uuid.UUID, def badge.Definition) error
}

type BadgeService struct {
	store    BadgeStore
	catalog  *badge.CatalogHolder
	notifier AwardNotifier
	metrics  *BadgeMetrics
	logger   *zap.Logger
}

func NewBadgeService(store BadgeStore, metrics *BadgeMetrics, logger *zap.Logger) *BadgeService {
	empty, _ := badge.NewCatalog(nil)
	return &BadgeService{
		store:   store,
		catalog: badge.NewCatalogHolder(empty),
		metrics: metrics,
		logger:  logger,
	}
}

// SetNotifier installs the push notifier for new awards.
func (s *BadgeService) SetNotifier(n AwardNotifier) {
	s.notifier = n
}

// Catalog returns the active catalog.
func (s *BadgeService) Catalog() *badge.Catalog {
	return s.catalog.Load()
}

// SyncCatalog validates defs, writes them to storage and activates the stored
// catalog. Nothing is written if defs do not form a valid catalog.
func (s *BadgeService) SyncCatalog(ctx context.Context, defs []badge.Definition) error {
	if _, err := badge.NewCatalog(defs); err != nil {
		return err
	}
	if err := s.store.SyncDefinitions(ctx, defs); err != nil {
		return fmt.Errorf("failed to sync badge catalog: %w", err)
	}
	_, err := s.ReloadCatalog(ctx)
	return err
}

// ReloadCatalog rebuilds the catalog from storage and swaps it in. On error
// the previous catalog stays active.
func (s *BadgeService) ReloadCatalog(ctx context.Context) (int, error) {
	defs, err := s.store.LoadDefinitions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load badge definitions: %w", err)
	}
	catalog, err := badge.NewCatalog(defs)
	if err != nil {
		s.logger.Error("Rejected badge catalog", zap.Error(err))
		return 0, err
	}
	s.catalog.Store(catalog)
	s.metrics.catalogLoaded(catalog.Len())
	s.logger.Info("Badge catalog loaded", zap.Int("badges", catalog.Len()))
	return catalog.Len(), nil
}

func (s *BadgeService) ResolveUser(ctx context.Context, clerkID string) (uuid.UUID, error) {
	return s.store.ResolveUser(ctx, clerkID)
}

// CheckAndAward evaluates the user's current activity and records every
// badge they now qualify for. It returns only the badges this call awarded.
// A snapshot failure leaves the ledger untouched.
func (s *BadgeService) CheckAndAward(ctx context.Context, userID uuid.UUID) ([]badge.Definition, error) {
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		s.metrics.evaluation("snapshot_error")
		if !errors.Is(err, badge.ErrSnapshotUnavailable) {
			err = fmt.Errorf("%w: %v", badge.ErrSnapshotUnavailable, err)
		}
		return nil, err
	}
	return s.EvaluateWithSnapshot(ctx, userID, snap)
}

// CheckAfterLike runs a full check for the owner of a liked complaint.
func (s *BadgeService) CheckAfterLike(ctx context.Context, ownerID uuid.UUID, likeCount int) ([]badge.Definition, error) {
	s.logger.Debug("Checking badges after like",
		zap.String("user_id", ownerID.String()),
		zap.Int("like_count", likeCount),
	)
	return s.CheckAndAward(ctx, ownerID)
}

// EvaluateWithSnapshot is CheckAndAward with a caller-supplied snapshot.
func (s *BadgeService) EvaluateWithSnapshot(ctx context.Context, userID uuid.UUID, snap badge.Snapshot) ([]badge.Definition, error) {
	catalog := s.catalog.Load()

	awards, err := s.store.ListEarned(ctx, userID)
	if err != nil {
		s.metrics.evaluation("error")
		return nil, fmt.Errorf("failed to list earned badges: %w", err)
	}

	eval := badge.Evaluate(catalog, snap, badge.EarnedSlugs(catalog, awards))

	awarded := make([]badge.Definition, 0, len(eval.ToAward))
	for _, d := range eval.ToAward {
		ok, err := s.store.TryAward(ctx, userID, d.ID)
		if err != nil {
			s.metrics.evaluation("error")
			s.notifyAll(ctx, userID, awarded)
			return awarded, fmt.Errorf("failed to award %s: %w", d.Slug, err)
		}
		if !ok {
			// Another evaluation for this user recorded it first.
			s.metrics.conflict()
			continue
		}
		awarded = append(awarded, d)
		s.metrics.awardedBadge(d)
		s.logger.Info("Badge awarded",
			zap.String("user_id", userID.String()),
			zap.String("slug", d.Slug),
			zap.String("rarity", string(d.Rarity)),
		)
	}

	if len(awarded) > 0 {
		s.metrics.evaluation("awarded")
	} else {
		s.metrics.evaluation("none")
	}
	s.notifyAll(ctx, userID, awarded)
	return awarded, nil
}

func (s *BadgeService) notifyAll(ctx context.Context, userID uuid.UUID, defs []badge.Definition) {
	if s.notifier == nil {
		return
	}
	for _, d := range defs {
		if err := s.notifier.BadgeEarned(ctx, userID, d); err != nil {
			s.logger.Warn("Badge push failed",
				zap.String("user_id", userID.String()),
				zap.String("slug", d.Slug),
				zap.Error(err),
			)
		}
	}
}

// AllWithStatus lists every badge with the user's earned flag and progress.
func (s *BadgeService) AllWithStatus(ctx context.Context, userID uuid.UUID) (badge.Overview, error) {
	catalog := s.catalog.Load()
	snap, awards, err := s.activity(ctx, userID)
	if err != nil {
		return badge.Overview{}, err
	}
	return badge.BuildOverview(catalog, awards, snap), nil
}

// Earned lists the user's badges, newest first.
func (s *BadgeService) Earned(ctx context.Context, userID uuid.UUID) ([]badge.Earned, error) {
	catalog := s.catalog.Load()
	awards, err := s.store.ListEarned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list earned badges: %w", err)
	}
	earned, warnings := badge.ResolveAwards(catalog, awards)
	s.logWarnings(userID, warnings)
	if earned == nil {
		earned = []badge.Earned{}
	}
	return earned, nil
}

func (s *BadgeService) Stats(ctx context.Context, userID uuid.UUID) (badge.Stats, error) {
	catalog := s.catalog.Load()
	snap, awards, err := s.activity(ctx, userID)
	if err != nil {
		return badge.Stats{}, err
	}
	stats := badge.BuildStats(catalog, awards, snap)
	s.logWarnings(userID, stats.Warnings)
	if stats.RecentBadges == nil {
		stats.RecentBadges = []badge.Earned{}
	}
	return stats, nil
}

func (s *BadgeService) Progress(ctx context.Context, userID uuid.UUID) (badge.ProgressSet, error) {
	catalog := s.catalog.Load()
	snap, awards, err := s.activity(ctx, userID)
	if err != nil {
		return badge.ProgressSet{}, err
	}
	return badge.TrackProgress(catalog, snap, badge.EarnedSlugs(catalog, awards)), nil
}

// Recent lists earned badges the user has not been shown yet. It does not
// change their state.
func (s *BadgeService) Recent(ctx context.Context, userID uuid.UUID) ([]badge.Earned, error) {
	earned, err := s.Earned(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent := []badge.Earned{}
	for _, e := range earned {
		if !e.Notified {
			recent = append(recent, e)
		}
	}
	return recent, nil
}

// Acknowledge marks every unnotified badge of the user as notified.
func (s *BadgeService) Acknowledge(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.store.MarkAllNotified(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to acknowledge badges: %w", err)
	}
	return n, nil
}

// MarkNotified marks a single badge, by slug, as notified.
func (s *BadgeService) MarkNotified(ctx context.Context, userID uuid.UUID, slug string) error {
	d, ok := s.catalog.Load().BySlug(slug)
	if !ok {
		return fmt.Errorf("%w: %s", badge.ErrUnknownBadge, slug)
	}
	return s.store.MarkNotified(ctx, userID, d.ID)
}

func (s *BadgeService) activity(ctx context.Context, userID uuid.UUID) (badge.Snapshot, []badge.Award, error) {
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		if !errors.Is(err, badge.ErrSnapshotUnavailable) {
			err = fmt.Errorf("%w: %v", badge.ErrSnapshotUnavailable, err)
		}
		return badge.Snapshot{}, nil, err
	}
	awards, err := s.store.ListEarned(ctx, userID)
	if err != nil {
		return badge.Snapshot{}, nil, fmt.Errorf("failed to list earned badges: %w", err)
	}
	return snap, awards, nil
}

func (s *BadgeService) logWarnings(userID uuid.UUID, warnings []string) {
	for _, w := range warnings {
		s.logger.Warn("Skipping award", zap.String("user_id", userID.String()), zap.String("reason", w))
	}
}
