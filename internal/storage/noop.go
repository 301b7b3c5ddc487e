package storage

import "github.com/mmeink/livechat/backend/internal/types"

// Store defines the storage interface
type Store interface {
	SaveSessionFact(fact types.SessionFact) error
	SaveAgentDailyRollup(rollup types.AgentDailyRollup) error
	SaveTranscript(transcript types.Transcript) error
	GetSessionFacts(dateKey string) ([]types.SessionFact, error)
	GetAgentDailyRollups(agentID string) ([]types.AgentDailyRollup, error)
	GetAgentFactsByDate(agentID, date string) ([]types.SessionFact, error)
	GetTranscript(sessionID string) (types.Transcript, bool, error)
	TruncateAll() error
}

// NoopStore is a no-op implementation when DynamoDB is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveSessionFact(_ types.SessionFact) error             { return nil }
func (s *NoopStore) SaveAgentDailyRollup(_ types.AgentDailyRollup) error   { return nil }
func (s *NoopStore) SaveTranscript(_ types.Transcript) error               { return nil }
func (s *NoopStore) GetSessionFacts(_ string) ([]types.SessionFact, error) { return nil, nil }
func (s *NoopStore) GetAgentDailyRollups(_ string) ([]types.AgentDailyRollup, error) {
	return nil, nil
}
func (s *NoopStore) GetAgentFactsByDate(_, _ string) ([]types.SessionFact, error) { return nil, nil }
func (s *NoopStore) GetTranscript(_ string) (types.Transcript, bool, error) {
	return types.Transcript{}, false, nil
}
func (s *NoopStore) TruncateAll() error { return nil }
