package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"civicBadgesAPI/internal/badge"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ActivityKind string

const (
	ComplaintCreated  ActivityKind = "complaint_created"
	ComplaintResolved ActivityKind = "complaint_resolved"
	ComplaintLiked    ActivityKind = "complaint_liked"
	ComplaintUnliked  ActivityKind = "complaint_unliked"
)

var (
	ErrQueueFull         = errors.New("badge dispatch queue full")
	ErrDispatcherStopped = errors.New("badge dispatcher stopped")
)

// ActivityEvent is a change in a user's complaint activity reported by the
// complaint backend. UserID is the user whose badges may change: the
// complainant, or the complaint owner for likes.
type ActivityEvent struct {
	UserID      uuid.UUID    `json:"user_id" validate:"required"`
	Kind        ActivityKind `json:"kind" validate:"required,oneof=complaint_created complaint_resolved complaint_liked complaint_unliked"`
	ComplaintID *uuid.UUID   `json:"complaint_id,omitempty"`
	LikeCount   int          `json:"like_count,omitempty" validate:"gte=0"`
}

// BadgeChecker runs badge evaluations for the dispatcher.
type BadgeChecker interface {
	CheckAndAward(ctx context.Context, userID uuid.UUID) ([]badge.Definition, error)
	CheckAfterLike(ctx context.Context, ownerID uuid.UUID, likeCount int) ([]badge.Definition, error)
}

type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration
	JobTimeout     time.Duration
	// NewBackOff builds the retry policy for one job. Defaults to an
	// exponential backoff bounded by JobTimeout.
	NewBackOff func() backoff.BackOff
}

// BadgeDispatcher evaluates badges off the request path with a fixed pool of
// workers. Snapshot failures are retried; anything else fails the job.
type BadgeDispatcher struct {
	checker  BadgeChecker
	cfg      DispatcherConfig
	jobQueue chan ActivityEvent
	logger   *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewBadgeDispatcher(checker BadgeChecker, cfg DispatcherConfig, logger *zap.Logger) *BadgeDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.NewBackOff == nil {
		jobTimeout := cfg.JobTimeout
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = jobTimeout
			return b
		}
	}

	d := &BadgeDispatcher{
		checker:  checker,
		cfg:      cfg,
		jobQueue: make(chan ActivityEvent, cfg.QueueSize),
		logger:   logger,
	}
	d.startWorkers()
	return d
}

func (d *BadgeDispatcher) startWorkers() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *BadgeDispatcher) worker(id int) {
	defer d.wg.Done()
	for ev := range d.jobQueue {
		if err := d.processEvent(ev); err != nil {
			d.logger.Error("Badge evaluation failed",
				zap.Int("worker", id),
				zap.String("user_id", ev.UserID.String()),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err),
			)
		}
	}
}

func (d *BadgeDispatcher) processEvent(ev ActivityEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
	defer cancel()

	var awarded []badge.Definition
	operation := func() error {
		var err error
		if ev.Kind == ComplaintLiked {
			awarded, err = d.checker.CheckAfterLike(ctx, ev.UserID, ev.LikeCount)
		} else {
			awarded, err = d.checker.CheckAndAward(ctx, ev.UserID)
		}
		if err != nil && !errors.Is(err, badge.ErrSnapshotUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("Retrying badge evaluation",
			zap.String("user_id", ev.UserID.String()),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(d.cfg.NewBackOff(), ctx), notify); err != nil {
		return err
	}
	if len(awarded) > 0 {
		d.logger.Info("Activity produced badges",
			zap.String("user_id", ev.UserID.String()),
			zap.String("kind", string(ev.Kind)),
			zap.Int("awarded", len(awarded)),
		)
	}
	return nil
}

// Dispatch queues ev for evaluation. It waits up to the enqueue timeout for
// room in the queue.
func (d *BadgeDispatcher) Dispatch(ctx context.Context, ev ActivityEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}

	timer := time.NewTimer(d.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case d.jobQueue <- ev:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: user %s", ErrQueueFull, ev.UserID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new events and waits for queued ones to finish.
func (d *BadgeDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobQueue)
	d.mu.Unlock()

	d.logger.Info("Stopping badge dispatcher")
	d.wg.Wait()
	d.logger.Info("Badge dispatcher stopped")
}
