package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"civicBadgesAPI/internal/badge"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-file store used for local runs. It carries its
// own users and complaints tables so snapshots work without Postgres.
type SQLiteStore struct {
	sqlDB  *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenSQLite migrates and opens the SQLite database at path.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)

	if err := MigrateSQLite(cleanPath, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps concurrent awards from tripping SQLITE_BUSY; the
	// unique constraint still decides who wins.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, logger: logger, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Snapshot(ctx context.Context, userID uuid.UUID) (badge.Snapshot, error) {
	snap := badge.Snapshot{CategoryCountMap: map[string]int{}}

	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(upvote_count), 0),
			COALESCE(MAX(upvote_count), 0)
		FROM complaints
		WHERE complainant_id = ?`,
		ResolvedStatus, userID.String(),
	)
	if err := row.Scan(&snap.TotalComplaints, &snap.ResolvedComplaints, &snap.TotalLikesReceived, &snap.MaxSingleComplaintLikes); err != nil {
		return badge.Snapshot{}, fmt.Errorf("%w: aggregate complaints: %v", badge.ErrSnapshotUnavailable, err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT assigned_department, COUNT(*)
		FROM complaints
		WHERE complainant_id = ? AND assigned_department IS NOT NULL
		GROUP BY assigned_department`,
		userID.String(),
	)
	if err != nil {
		return badge.Snapshot{}, fmt.Errorf("%w: count departments: %v", badge.ErrSnapshotUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var dept string
		var n int
		if err := rows.Scan(&dept, &n); err != nil {
			return badge.Snapshot{}, fmt.Errorf("%w: scan department: %v", badge.ErrSnapshotUnavailable, err)
		}
		snap.CategoryCountMap[dept] = n
	}
	if err := rows.Err(); err != nil {
		return badge.Snapshot{}, fmt.Errorf("%w: %v", badge.ErrSnapshotUnavailable, err)
	}
	return snap, nil
}

func (s *SQLiteStore) TryAward(ctx context.Context, userID, badgeID uuid.UUID) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO badge_awards (id, user_id, badge_id, earned_at, notified)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT (user_id, badge_id) DO NOTHING`,
		uuid.NewString(), userID.String(), badgeID.String(), s.now().UTC().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("award badge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("award badge rows: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListEarned(ctx context.Context, userID uuid.UUID) ([]badge.Award, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, user_id, badge_id, earned_at, notified
		FROM badge_awards
		WHERE user_id = ?
		ORDER BY earned_at DESC, id`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	defer rows.Close()

	var awards []badge.Award
	for rows.Next() {
		var (
			a                   badge.Award
			id, user, badgeText string
			earnedAt            int64
			notified            int
		)
		if err := rows.Scan(&id, &user, &badgeText, &earnedAt, &notified); err != nil {
			return nil, fmt.Errorf("scan award: %w", err)
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse award id: %w", err)
		}
		if a.UserID, err = uuid.Parse(user); err != nil {
			return nil, fmt.Errorf("parse award user id: %w", err)
		}
		if a.BadgeID, err = uuid.Parse(badgeText); err != nil {
			return nil, fmt.Errorf("parse award badge id: %w", err)
		}
		a.EarnedAt = time.Unix(0, earnedAt).UTC()
		a.Notified = notified != 0
		awards = append(awards, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	return awards, nil
}

func (s *SQLiteStore) MarkNotified(ctx context.Context, userID, badgeID uuid.UUID) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE badge_awards SET notified = 1 WHERE user_id = ? AND badge_id = ? AND notified = 0`,
		userID.String(), badgeID.String(),
	)
	if err != nil {
		return fmt.Errorf("mark badge notified: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkAllNotified(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE badge_awards SET notified = 1 WHERE user_id = ? AND notified = 0`,
		userID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark badges notified: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) LoadDefinitions(ctx context.Context) ([]badge.Definition, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, slug, name, description, icon, category, rarity, threshold, metric, departments, created_at
		FROM badge_definitions
		WHERE retired_at IS NULL
		ORDER BY category, threshold, slug`)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var defs []badge.Definition
	for rows.Next() {
		var (
			d           badge.Definition
			id          string
			departments string
			createdAt   int64
		)
		err := rows.Scan(&id, &d.Slug, &d.Name, &d.Description, &d.Icon,
			&d.Category, &d.Rarity, &d.Threshold, &d.Metric, &departments, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		if d.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse badge id %q: %w", id, err)
		}
		if departments != "" {
			d.Departments = strings.Split(departments, ",")
		}
		d.CreatedAt = time.Unix(0, createdAt).UTC()
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	return defs, nil
}

// SyncDefinitions upserts defs by slug and retires active badges missing from
// defs, in one transaction.
func (s *SQLiteStore) SyncDefinitions(ctx context.Context, defs []badge.Definition) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin badge sync: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().UnixNano()
	keep := make([]any, 0, len(defs)+1)
	keep = append(keep, now)
	for _, d := range defs {
		keep = append(keep, d.Slug)
		id := d.ID
		if id == uuid.Nil {
			id = badge.DefinitionID(d.Slug)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO badge_definitions (id, slug, name, description, icon, category, rarity, threshold, metric, departments, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (slug) DO UPDATE SET
				retired_at = NULL,
				name = excluded.name,
				description = excluded.description,
				icon = excluded.icon,
				category = excluded.category,
				rarity = excluded.rarity,
				threshold = excluded.threshold,
				metric = excluded.metric,
				departments = excluded.departments`,
			id.String(), d.Slug, d.Name, d.Description, d.Icon,
			string(d.Category), string(d.Rarity), d.Threshold, string(d.Metric),
			strings.Join(d.Departments, ","), now,
		)
		if err != nil {
			return fmt.Errorf("sync badge %q: %w", d.Slug, err)
		}
	}

	retire := `UPDATE badge_definitions SET retired_at = ? WHERE retired_at IS NULL`
	if len(defs) > 0 {
		retire += ` AND slug NOT IN (?` + strings.Repeat(`, ?`, len(defs)-1) + `)`
	}
	res, err := tx.ExecContext(ctx, retire, keep...)
	if err != nil {
		return fmt.Errorf("retire badges: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit badge sync: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("Retired badges missing from catalog", zap.Int64("count", n))
	}
	return nil
}

func (s *SQLiteStore) ResolveUser(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var id string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id FROM users WHERE clerk_id = ?`, clerkID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, badge.ErrUserNotFound
		}
		return uuid.Nil, fmt.Errorf("resolve user: %w", err)
	}
	return uuid.Parse(id)
}

// AddUser inserts a local user row.
func (s *SQLiteStore) AddUser(ctx context.Context, clerkID string, userID uuid.UUID) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, clerk_id) VALUES (?, ?) ON CONFLICT (clerk_id) DO NOTHING`,
		userID.String(), clerkID,
	)
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

// RecordComplaint upserts a local complaint row; used by local runs and tests
// to feed snapshots.
func (s *SQLiteStore) RecordComplaint(ctx context.Context, c Complaint) error {
	var dept any
	if c.Department != "" {
		dept = c.Department
	}
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO complaints (id, complainant_id, status, upvote_count, assigned_department)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			upvote_count = excluded.upvote_count,
			assigned_department = excluded.assigned_department`,
		c.ID.String(), c.ComplainantID.String(), c.Status, c.Upvotes, dept,
	)
	if err != nil {
		return fmt.Errorf("record complaint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteComplaint(ctx context.Context, id uuid.UUID) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM complaints WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete complaint: %w", err)
	}
	return nil
}

// Complaint is the slice of a complaint the snapshot reads.
type Complaint struct {
	ID            uuid.UUID
	ComplainantID uuid.UUID
	Status        string
	Upvotes       int
	Department    string
}
