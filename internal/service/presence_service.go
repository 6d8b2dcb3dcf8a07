package service

import (
	"context"
	"sync"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/cache"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/repository"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PresenceService estimates liveness from heartbeats and the declared
// status. Heartbeats never fail visibly.
type PresenceService struct {
	store  repository.Store
	mirror *cache.PresenceCache
	window time.Duration
	notifier

	Now func() time.Time

	sweepMu   sync.Mutex
	lastSweep time.Time
}

func NewPresenceService(store repository.Store, mirror *cache.PresenceCache, window time.Duration, pub fanout.Publisher, log *zap.Logger) *PresenceService {
	if window <= 0 {
		window = models.DefaultPresenceWindow
	}
	return &PresenceService{
		store:    store,
		mirror:   mirror,
		window:   window,
		notifier: newNotifier(pub, log),
		Now:      time.Now,
	}
}

func (s *PresenceService) Window() time.Duration { return s.window }

// Heartbeat records that user was seen at. Timestamps ahead of the server
// clock are clamped to it; older ones are accepted but cannot move
// last_seen back.
func (s *PresenceService) Heartbeat(ctx context.Context, user uuid.UUID, at time.Time) models.Liveness {
	now := s.Now()
	if at.IsZero() || at.After(now) {
		at = now
	}
	at = dbTime(at)

	prev := s.record(ctx, user)
	before := models.ComputeLiveness(prev, now, s.window)

	var (
		rec   *models.PresenceRecord
		after models.Liveness
		out   outbox
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		var err error
		if rec, err = tx.Presence().Touch(ctx, user, at); err != nil {
			return err
		}
		after = models.ComputeLiveness(rec, now, s.window)
		if before == after {
			return nil
		}
		return out.stage(ctx, tx, events.PresenceTopic(user), events.KindPresenceChanged, presenceEvent(rec, after))
	})
	if err != nil {
		s.log.Warn("presence heartbeat dropped", zap.Stringer("user", user), zap.Error(err))
		return before
	}

	s.remember(ctx, rec)
	s.flush(ctx, &out)
	return after
}

func (s *PresenceService) SetDeclaredStatus(ctx context.Context, user uuid.UUID, status models.DeclaredStatus) (*events.PresenceChanged, error) {
	if !status.Valid() {
		return nil, apperrors.ErrInvalidStatus
	}
	now := s.Now()
	prev := s.record(ctx, user)

	var (
		view events.PresenceChanged
		rec  *models.PresenceRecord
		out  outbox
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		var err error
		if rec, err = tx.Presence().SetStatus(ctx, user, status, dbTime(now)); err != nil {
			return err
		}
		view = s.view(rec, now)
		if prev != nil && prev.DeclaredStatus == rec.DeclaredStatus {
			return nil
		}
		return out.stage(ctx, tx, events.PresenceTopic(user), events.KindPresenceChanged, view)
	})
	if err != nil {
		return nil, err
	}

	s.remember(ctx, rec)
	s.flush(ctx, &out)
	return &view, nil
}

// Liveness derives user's liveness at the current time. Lookup failures
// read as offline.
func (s *PresenceService) Liveness(ctx context.Context, user uuid.UUID) models.Liveness {
	return models.ComputeLiveness(s.record(ctx, user), s.Now(), s.window)
}

// Status is the full presence view of user.
func (s *PresenceService) Status(ctx context.Context, user uuid.UUID) events.PresenceChanged {
	rec := s.record(ctx, user)
	if rec == nil {
		return events.PresenceChanged{
			UserID:         user,
			Liveness:       string(models.LivenessOffline),
			DeclaredStatus: string(models.DeclaredOffline),
		}
	}
	return s.view(rec, s.Now())
}

// Sweep publishes the online-to-offline transitions of users whose last
// heartbeat aged out of the window since the previous sweep.
func (s *PresenceService) Sweep(ctx context.Context) (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	now := s.Now()
	to := now.Add(-s.window)
	from := s.lastSweep
	if from.IsZero() {
		from = to.Add(-s.window)
	}
	if !to.After(from) {
		return 0, nil
	}

	expired, err := s.store.Presence().ListExpired(ctx, from, to)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range expired {
		published, err := s.expire(ctx, expired[i].UserID, now)
		if err != nil {
			return n, err
		}
		if published {
			n++
		}
	}
	s.lastSweep = to
	return n, nil
}

// expire publishes user's transition to offline unless a heartbeat
// committed since the record was listed. The record is re-read under the
// presence topic lock, so a heartbeat racing the sweep is numbered after it.
func (s *PresenceService) expire(ctx context.Context, user uuid.UUID, now time.Time) (bool, error) {
	var (
		rec *models.PresenceRecord
		out outbox
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		out = outbox{}
		topic := events.PresenceTopic(user)
		seq, err := out.reserve(ctx, tx, topic)
		if err != nil {
			return err
		}
		if rec, err = tx.Presence().Get(ctx, user); err != nil {
			return err
		}
		if models.ComputeLiveness(rec, now, s.window) != models.LivenessOffline {
			return errStillLive
		}
		out.add(topic, events.KindPresenceChanged, seq, presenceEvent(rec, models.LivenessOffline))
		return nil
	})
	if errors.Is(err, errStillLive) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.remember(ctx, rec)
	s.flush(ctx, &out)
	return true, nil
}

var errStillLive = errors.New("presence refreshed since listed")

// RunSweeper calls Sweep every interval until ctx ends.
func (s *PresenceService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Warn("presence sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Debug("presence sweep", zap.Int("expired", n))
			}
		}
	}
}

// record reads the mirror first and falls back to the database. Any failure
// yields nil, which reads as offline.
func (s *PresenceService) record(ctx context.Context, user uuid.UUID) *models.PresenceRecord {
	if rec, ok := s.mirror.Get(ctx, user); ok {
		return rec
	}
	rec, err := s.store.Presence().Get(ctx, user)
	if err != nil {
		if !isNotFound(err) {
			s.log.Warn("presence lookup failed", zap.Stringer("user", user), zap.Error(err))
		}
		return nil
	}
	s.remember(ctx, rec)
	return rec
}

func (s *PresenceService) remember(ctx context.Context, rec *models.PresenceRecord) {
	if err := s.mirror.Set(ctx, rec); err != nil {
		s.log.Debug("presence mirror set failed", zap.Error(err))
	}
}

func (s *PresenceService) view(rec *models.PresenceRecord, now time.Time) events.PresenceChanged {
	seen := rec.LastSeen
	return events.PresenceChanged{
		UserID:         rec.UserID,
		Liveness:       string(models.ComputeLiveness(rec, now, s.window)),
		DeclaredStatus: string(rec.DeclaredStatus),
		LastSeen:       &seen,
	}
}

func presenceEvent(rec *models.PresenceRecord, l models.Liveness) events.PresenceChanged {
	seen := rec.LastSeen
	return events.PresenceChanged{
		UserID:         rec.UserID,
		Liveness:       string(l),
		DeclaredStatus: string(rec.DeclaredStatus),
		LastSeen:       &seen,
	}
}
