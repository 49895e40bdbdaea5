package store

import (
	"context"
	"errors"
	"fmt"

	"civicBadgesAPI/internal/badge"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ResolvedStatus is the complaint status counted as resolved.
const ResolvedStatus = "COMPLETED"

// PostgresStore reads complaint activity from the complaint backend's tables
// and keeps the badge catalog and ledger in its own.
type PostgresStore struct {
	db      *pgxpool.Pool
	queries activityQueries
	logger  *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, schema ActivitySchema, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, queries: schema.queries(), logger: logger}
}

func (s *PostgresStore) Snapshot(ctx context.Context, userID uuid.UUID) (badge.Snapshot, error) {
	snap := badge.Snapshot{CategoryCountMap: map[string]int{}}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var total, resolved, likes, maxLikes int64
		err := s.db.QueryRow(gctx, s.queries.aggregate, userID.String(), ResolvedStatus).Scan(&total, &resolved, &likes, &maxLikes)
		if err != nil {
			return fmt.Errorf("failed to aggregate complaints: %w", err)
		}
		snap.TotalComplaints = int(total)
		snap.ResolvedComplaints = int(resolved)
		snap.TotalLikesReceived = int(likes)
		snap.MaxSingleComplaintLikes = int(maxLikes)
		return nil
	})

	counts := make(map[string]int)
	g.Go(func() error {
		rows, err := s.db.Query(gctx, s.queries.departments, userID.String())
		if err != nil {
			return fmt.Errorf("failed to count complaints by department: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var dept string
			var n int64
			if err := rows.Scan(&dept, &n); err != nil {
				return fmt.Errorf("failed to scan department count: %w", err)
			}
			counts[dept] = int(n)
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		s.logger.Warn("Snapshot query failed", zap.String("user_id", userID.String()), zap.Error(err))
		return badge.Snapshot{}, fmt.Errorf("%w: %v", badge.ErrSnapshotUnavailable, err)
	}
	snap.CategoryCountMap = counts
	return snap, nil
}

func (s *PostgresStore) TryAward(ctx context.Context, userID, badgeID uuid.UUID) (bool, error) {
	query := `
	INSERT INTO badge_awards (id, user_id, badge_id, earned_at, notified)
	VALUES ($1, $2, $3, NOW(), false)
	ON CONFLICT (user_id, badge_id) DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query, uuid.New(), userID, badgeID)
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListEarned(ctx context.Context, userID uuid.UUID) ([]badge.Award, error) {
	query := `
	SELECT id, user_id, badge_id, earned_at, notified
	FROM badge_awards
	WHERE user_id = $1
	ORDER BY earned_at DESC, id
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch awards: %w", err)
	}
	defer rows.Close()

	var awards []badge.Award
	for rows.Next() {
		var a badge.Award
		if err := rows.Scan(&a.ID, &a.UserID, &a.BadgeID, &a.EarnedAt, &a.Notified); err != nil {
			return nil, fmt.Errorf("failed to scan award: %w", err)
		}
		awards = append(awards, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read awards: %w", err)
	}
	return awards, nil
}

func (s *PostgresStore) MarkNotified(ctx context.Context, userID, badgeID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE badge_awards SET notified = true WHERE user_id = $1 AND badge_id = $2 AND notified = false`,
		userID, badgeID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark badge notified: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkAllNotified(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE badge_awards SET notified = true WHERE user_id = $1 AND notified = false`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark badges notified: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) LoadDefinitions(ctx context.Context) ([]badge.Definition, error) {
	query := `
	SELECT id, slug, name, description, icon, category, rarity, threshold, metric, departments, created_at
	FROM badge_definitions
	WHERE retired_at IS NULL
	ORDER BY category, threshold, slug
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch badges: %w", err)
	}
	defer rows.Close()

	var defs []badge.Definition
	for rows.Next() {
		var d badge.Definition
		err := rows.Scan(
			&d.ID,
			&d.Slug,
			&d.Name,
			&d.Description,
			&d.Icon,
			&d.Category,
			&d.Rarity,
			&d.Threshold,
			&d.Metric,
			&d.Departments,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read badges: %w", err)
	}
	return defs, nil
}

// SyncDefinitions upserts defs by slug and retires every active badge missing
// from defs, in one transaction. Existing ids are kept; retired rows stay for
// the awards that reference them.
func (s *PostgresStore) SyncDefinitions(ctx context.Context, defs []badge.Definition) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
	INSERT INTO badge_definitions (id, slug, name, description, icon, category, rarity, threshold, metric, departments)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (slug) DO UPDATE SET
		retired_at = NULL,
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		icon = EXCLUDED.icon,
		category = EXCLUDED.category,
		rarity = EXCLUDED.rarity,
		threshold = EXCLUDED.threshold,
		metric = EXCLUDED.metric,
		departments = EXCLUDED.departments
	`
	slugs := make([]string, 0, len(defs))
	for _, d := range defs {
		slugs = append(slugs, d.Slug)
		id := d.ID
		if id == uuid.Nil {
			id = badge.DefinitionID(d.Slug)
		}
		departments := d.Departments
		if departments == nil {
			departments = []string{}
		}
		_, err := tx.Exec(ctx, query,
			id, d.Slug, d.Name, d.Description, d.Icon,
			string(d.Category), string(d.Rarity), d.Threshold, string(d.Metric), departments,
		)
		if err != nil {
			return fmt.Errorf("failed to sync badge %q: %w", d.Slug, err)
		}
	}

	tag, err := tx.Exec(ctx, `
	UPDATE badge_definitions SET retired_at = NOW()
	WHERE retired_at IS NULL AND NOT (slug = ANY($1))
	`, slugs)
	if err != nil {
		return fmt.Errorf("failed to retire badges: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit badge sync: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("Retired badges missing from catalog", zap.Int64("count", n))
	}
	return nil
}

func (s *PostgresStore) ResolveUser(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, s.queries.resolveUser, clerkID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, badge.ErrUserNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return userID, nil
}
