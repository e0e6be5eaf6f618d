package memory

import (
	"context"
	"sync"

	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/dao"
	"github.com/viant/phasegate/service/dao/state"
)

// Service is an in-memory workflow-state store for tests and embedders that
// manage durability themselves. Save stores a deep copy, matching the
// replace-on-write semantics of the filesystem store.
type Service struct {
	mu       sync.RWMutex
	current  *model.State
	archived map[string]*model.State
}

var _ state.Store = (*Service)(nil)

// New creates an empty in-memory state store.
func New() *Service {
	return &Service{archived: make(map[string]*model.State)}
}

// Save replaces the stored document with a deep copy of the supplied state.
func (s *Service) Save(_ context.Context, aState *model.State) error {
	if aState == nil {
		return dao.ErrNilEntity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = aState.Clone()
	return nil
}

// Load returns a copy of the stored document.
func (s *Service) Load(_ context.Context) (*model.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, dao.ErrNotFound
	}
	return s.current.Clone(), nil
}

// Archive moves the live document into the archive map.
func (s *Service) Archive(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return dao.ErrNotFound
	}
	s.archived[sessionID] = s.current
	s.current = nil
	return nil
}

// Archived returns the archived state of a session, for tests.
func (s *Service) Archived(sessionID string) *model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.archived[sessionID]
}
