package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/researchflow/researchflow/types"
)

// MemStore is an in-memory Store implementation, used by tests and by any
// caller that doesn't need durability across process restarts.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	sources  map[string][]types.Source
	findings map[string][]types.Finding
	pipeline map[string]map[string][]byte
	reports  map[string]*types.Report
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*types.Session),
		sources:  make(map[string][]types.Source),
		findings: make(map[string][]types.Finding),
		pipeline: make(map[string]map[string][]byte),
		reports:  make(map[string]*types.Report),
	}
}

func (s *MemStore) CreateSession(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *MemStore) UpdateSession(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemStore) AddSources(ctx context.Context, sessionID string, sources []types.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool, len(s.sources[sessionID]))
	for _, src := range s.sources[sessionID] {
		existing[src.URL] = true
	}
	for _, src := range sources {
		if src.URL == "" || existing[src.URL] {
			continue
		}
		existing[src.URL] = true
		s.sources[sessionID] = append(s.sources[sessionID], src)
	}
	return nil
}

func (s *MemStore) GetSources(ctx context.Context, sessionID string) ([]types.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Source, len(s.sources[sessionID]))
	copy(out, s.sources[sessionID])
	return out, nil
}

func (s *MemStore) AddFindings(ctx context.Context, sessionID string, findings []types.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings[sessionID] = append(s.findings[sessionID], findings...)
	return nil
}

func (s *MemStore) GetFindings(ctx context.Context, sessionID string) ([]types.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Finding, len(s.findings[sessionID]))
	copy(out, s.findings[sessionID])
	return out, nil
}

func (s *MemStore) SetPipelineData(ctx context.Context, sessionID, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline[sessionID] == nil {
		s.pipeline[sessionID] = make(map[string][]byte)
	}
	s.pipeline[sessionID][key] = data
	return nil
}

func (s *MemStore) GetPipelineData(ctx context.Context, sessionID, key string, dest any) (bool, error) {
	s.mu.RLock()
	data, ok := s.pipeline[sessionID][key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemStore) SaveReport(ctx context.Context, report *types.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *report
	s.reports[report.SessionID] = &cp
	return nil
}

func (s *MemStore) GetReport(ctx context.Context, sessionID string) (*types.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *report
	return &cp, nil
}
