package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"civicBadgesAPI/internal/badge"

	"github.com/google/uuid"
)

// MemoryStore keeps catalog, awards and snapshots in process memory. It is
// used by tests and by STORAGE_DRIVER=memory.
type MemoryStore struct {
	mu          sync.Mutex
	defs        []badge.Definition
	retired     map[string]bool
	awards      map[uuid.UUID]map[uuid.UUID]badge.Award
	snapshots   map[uuid.UUID]badge.Snapshot
	users       map[string]uuid.UUID
	snapshotErr error
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		retired:   make(map[string]bool),
		awards:    make(map[uuid.UUID]map[uuid.UUID]badge.Award),
		snapshots: make(map[uuid.UUID]badge.Snapshot),
		users:     make(map[string]uuid.UUID),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for earnedAt.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) TryAward(ctx context.Context, userID, badgeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byBadge, ok := s.awards[userID]
	if !ok {
		byBadge = make(map[uuid.UUID]badge.Award)
		s.awards[userID] = byBadge
	}
	if _, exists := byBadge[badgeID]; exists {
		return false, nil
	}
	byBadge[badgeID] = badge.Award{
		ID:       uuid.New(),
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: s.now().UTC(),
	}
	return true, nil
}

func (s *MemoryStore) ListEarned(ctx context.Context, userID uuid.UUID) ([]badge.Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]badge.Award, 0, len(s.awards[userID]))
	for _, a := range s.awards[userID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.After(out[j].EarnedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) MarkNotified(ctx context.Context, userID, badgeID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.awards[userID][badgeID]
	if !ok {
		return nil
	}
	a.Notified = true
	s.awards[userID][badgeID] = a
	return nil
}

func (s *MemoryStore) MarkAllNotified(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, a := range s.awards[userID] {
		if a.Notified {
			continue
		}
		a.Notified = true
		s.awards[userID][id] = a
		n++
	}
	return n, nil
}

// SetSnapshot records the activity snapshot returned for userID.
func (s *MemoryStore) SetSnapshot(userID uuid.UUID, snap badge.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[userID] = snap
}

// FailSnapshots makes every Snapshot call fail with err until cleared with nil.
func (s *MemoryStore) FailSnapshots(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotErr = err
}

func (s *MemoryStore) Snapshot(ctx context.Context, userID uuid.UUID) (badge.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshotErr != nil {
		return badge.Snapshot{}, s.snapshotErr
	}
	snap := s.snapshots[userID]
	counts := make(map[string]int, len(snap.CategoryCountMap))
	for k, v := range snap.CategoryCountMap {
		counts[k] = v
	}
	snap.CategoryCountMap = counts
	return snap, nil
}

func (s *MemoryStore) LoadDefinitions(ctx context.Context) ([]badge.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]badge.Definition, 0, len(s.defs))
	for _, d := range s.defs {
		if !s.retired[d.Slug] {
			out = append(out, d)
		}
	}
	return out, nil
}

// SyncDefinitions upserts defs by slug, keeping the id of existing entries,
// and retires every entry missing from defs.
func (s *MemoryStore) SyncDefinitions(ctx context.Context, defs []badge.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[string]int, len(s.defs))
	for i, d := range s.defs {
		index[d.Slug] = i
	}
	active := make(map[string]bool, len(defs))
	for _, d := range defs {
		active[d.Slug] = true
		if i, ok := index[d.Slug]; ok {
			d.ID = s.defs[i].ID
			d.CreatedAt = s.defs[i].CreatedAt
			s.defs[i] = d
			continue
		}
		if d.ID == uuid.Nil {
			d.ID = badge.DefinitionID(d.Slug)
		}
		d.CreatedAt = s.now().UTC()
		index[d.Slug] = len(s.defs)
		s.defs = append(s.defs, d)
	}
	for _, d := range s.defs {
		s.retired[d.Slug] = !active[d.Slug]
	}
	return nil
}

// AddUser maps a Clerk subject to an internal user id.
func (s *MemoryStore) AddUser(clerkID string, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[clerkID] = userID
}

func (s *MemoryStore) ResolveUser(ctx context.Context, clerkID string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.users[clerkID]
	if !ok {
		return uuid.Nil, badge.ErrUserNotFound
	}
	return id, nil
}
