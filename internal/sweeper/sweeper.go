package sweeper

import (
	"context"
	"time"

	"github.com/mmeink/livechat/backend/internal/chat"
	"github.com/mmeink/livechat/backend/internal/metrics"
	"github.com/mmeink/livechat/backend/internal/queue"
	"github.com/rs/zerolog"
)

// Sweeper expires sessions that sat in the queue past the abandonment
// threshold. It only ever touches waiting sessions; a session the
// dispatcher assigned between the scan and the sweep is left alone.
type Sweeper struct {
	sessions  *chat.Store
	queue     *queue.Queue
	recorder  *metrics.Recorder
	threshold time.Duration
	interval  time.Duration
	logger    zerolog.Logger
}

// New creates a Sweeper abandoning entries older than threshold
func New(sessions *chat.Store, q *queue.Queue, recorder *metrics.Recorder, threshold, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		sessions:  sessions,
		queue:     q,
		recorder:  recorder,
		threshold: threshold,
		interval:  interval,
		logger:    logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("threshold", s.threshold).
		Msg("abandonment sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("abandonment sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep abandons every pending entry past the threshold. Returns the
// number of sessions abandoned.
//
// MarkAbandoned is the guard: it only succeeds on a waiting session,
// so an entry the dispatcher claimed mid-sweep is skipped and left to
// the dispatch path's stale handling.
func (s *Sweeper) Sweep() int {
	cutoff := time.Now().Add(-s.threshold)
	abandoned := 0

	for _, entry := range s.queue.PendingOlderThan(cutoff) {
		if !s.sessions.MarkAbandoned(entry.SessionID) {
			continue
		}
		s.queue.Expire(entry.SessionID)

		session, err := s.sessions.Get(entry.SessionID)
		if err != nil {
			s.logger.Error().Err(err).Str("session_id", entry.SessionID).Msg("abandoned session vanished")
			continue
		}
		s.recorder.RecordAbandoned(session)
		abandoned++

		s.logger.Info().
			Str("session_id", entry.SessionID).
			Float64("waited_seconds", time.Since(entry.EnteredQueueAt).Seconds()).
			Msg("session abandoned")
	}

	if purged := s.sessions.PurgeExpiredTokens(); purged > 0 {
		s.logger.Debug().Int("purged", purged).Msg("expired resume tokens purged")
	}

	return abandoned
}
