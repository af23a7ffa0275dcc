package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/overrides"
)

// RetryPolicy bounds the retries of one submission.
type RetryPolicy struct {
	MaxAttempts    int
	MinDelay       time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used by sessions.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		MinDelay:       200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// Syncer submits gateway writes in the background so the simulation never
// waits on I/O. Writes are not ordered relative to each other; the backend
// merge rule absorbs reordering.
type Syncer struct {
	gw     Gateway
	policy RetryPolicy
	onAuth func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	authFailed atomic.Bool
	failures   atomic.Int64
}

// NewSyncer creates a syncer. onAuthFailure is called once, from a background
// goroutine, when the gateway rejects the session's credentials.
func NewSyncer(gw Gateway, policy RetryPolicy, onAuthFailure func(error)) *Syncer {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.MinDelay <= 0 {
		policy.MinDelay = def.MinDelay
	}
	if policy.MaxDelay < policy.MinDelay {
		policy.MaxDelay = policy.MinDelay
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = def.AttemptTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{gw: gw, policy: policy, onAuth: onAuthFailure, ctx: ctx, cancel: cancel}
}

// SaveSnapshot submits a snapshot.
func (s *Syncer) SaveSnapshot(player string, snap Snapshot) {
	s.Submit("save_snapshot", log.Fields{"player": player}, func(ctx context.Context) error {
		return s.gw.SaveSnapshot(ctx, player, snap)
	})
}

// SaveOverrides submits a full override map.
func (s *Syncer) SaveOverrides(world string, entries map[overrides.TileKey]bool) {
	s.Submit("save_overrides", log.Fields{"world": world}, func(ctx context.Context) error {
		return s.gw.SaveOverrides(ctx, world, entries)
	})
}

// RecordQuestCompletion submits a completion record.
func (s *Syncer) RecordQuestCompletion(player string, rec Completion) {
	s.Submit("record_completion", log.Fields{"player": player, "quest": rec.QuestID}, func(ctx context.Context) error {
		return s.gw.RecordQuestCompletion(ctx, player, rec)
	})
}

// Submit runs op in the background with retries. After an authorization
// failure every later submission is dropped.
func (s *Syncer) Submit(name string, fields log.Fields, op func(ctx context.Context) error) {
	entry := log.WithFields(fields).WithField("op", name)
	if s.authFailed.Load() {
		entry.Debug("Dropping write after authorization failure")
		return
	}
	if s.ctx.Err() != nil {
		entry.Debug("Dropping write after close")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(entry, op)
	}()
}

func (s *Syncer) run(entry *log.Entry, op func(ctx context.Context) error) {
	b := &backoff.Backoff{
		Min:    s.policy.MinDelay,
		Max:    s.policy.MaxDelay,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(s.ctx, s.policy.AttemptTimeout)
		err := op(ctx)
		cancel()
		if err == nil {
			return
		}

		if errors.Is(err, ErrUnauthorized) {
			entry.WithError(err).Error("Gateway rejected credentials")
			if s.authFailed.CompareAndSwap(false, true) && s.onAuth != nil {
				s.onAuth(err)
			}
			return
		}
		if Permanent(err) || attempt >= s.policy.MaxAttempts || s.ctx.Err() != nil {
			s.failures.Add(1)
			entry.WithError(err).WithField("attempt", attempt).Warn("Gateway write abandoned")
			return
		}

		delay := b.Duration()
		entry.WithError(err).WithFields(log.Fields{"attempt": attempt, "retry_in": delay}).Warn("Gateway write failed, retrying")
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			s.failures.Add(1)
			return
		}
	}
}

// Wait blocks until every submitted write has finished.
func (s *Syncer) Wait() { s.wg.Wait() }

// Close stops pending retries and waits for in-flight writes.
func (s *Syncer) Close() {
	s.cancel()
	s.wg.Wait()
}

// Unauthorized reports whether an authorization failure was seen.
func (s *Syncer) Unauthorized() bool { return s.authFailed.Load() }

// Failures counts writes abandoned after their retries ran out.
func (s *Syncer) Failures() int64 { return s.failures.Load() }
