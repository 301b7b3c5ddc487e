package archive

import (
	"time"

	"github.com/mmeink/livechat/backend/internal/types"
	"github.com/rs/zerolog"
)

// TranscriptStore is the subset of the storage layer the archiver
// writes to
type TranscriptStore interface {
	SaveTranscript(transcript types.Transcript) error
}

// Archiver builds the read-only transcript snapshot of a closed
// session and persists it off the hot path. The snapshot is complete
// at build time; nothing ever updates a saved transcript.
type Archiver struct {
	store  TranscriptStore
	logger zerolog.Logger
}

// New creates an Archiver persisting through store
func New(store TranscriptStore, logger zerolog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		logger: logger.With().Str("component", "archive").Logger(),
	}
}

// Archive snapshots a closed session into a transcript and saves it
// asynchronously. Internal agent notes stay in the transcript so
// supervisors can review them; the customer-facing APIs never serve
// transcripts.
func (a *Archiver) Archive(session types.ChatSession, messages []types.Message, rating int) {
	transcript := Build(session, messages, rating)

	if a.store == nil {
		return
	}
	go func() {
		if err := a.store.SaveTranscript(transcript); err != nil {
			a.logger.Error().Err(err).Str("session_id", session.SessionID).Msg("failed to save transcript")
			return
		}
		a.logger.Debug().
			Str("session_id", session.SessionID).
			Int("messages", transcript.TotalMessages).
			Msg("transcript archived")
	}()
}

// Build assembles the transcript for a terminal session
func Build(session types.ChatSession, messages []types.Message, rating int) types.Transcript {
	transcript := types.Transcript{
		SessionID:       session.SessionID,
		CustomerName:    session.Customer.Name,
		CustomerEmail:   session.Customer.Email,
		AgentID:         session.AssignedAgentID,
		Messages:        messages,
		TotalMessages:   len(messages),
		DurationSeconds: session.TotalDurationSeconds,
		Rating:          rating,
		ChatStartedAt:   session.CreatedAt.Format(time.RFC3339),
		ArchivedAt:      time.Now().Format(time.RFC3339),
	}
	if session.ClosedAt != nil {
		transcript.ChatEndedAt = session.ClosedAt.Format(time.RFC3339)
	}
	return transcript
}
