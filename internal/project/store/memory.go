// Package store persists projects in memory or PostgreSQL.
package store

import (
	"context"
	"sync"

	"kycverify/internal/project/models"
	id "kycverify/pkg/domain"
	"kycverify/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	byID     map[id.ProjectID]*models.Project
	byPrefix map[string]id.ProjectID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:     make(map[id.ProjectID]*models.Project),
		byPrefix: make(map[string]id.ProjectID),
	}
}

// Create inserts p. A duplicate id or key prefix is a conflict.
func (s *InMemory) Create(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byPrefix[p.KeyPrefix]; ok {
		return sentinel.ErrConflict
	}
	s.byID[p.ID] = p.Clone()
	s.byPrefix[p.KeyPrefix] = p.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, projectID id.ProjectID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[projectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InMemory) FindByKeyPrefix(_ context.Context, prefix string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.byPrefix[prefix]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[pid].Clone(), nil
}

// Update replaces the mutable fields of an existing project.
func (s *InMemory) Update(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[p.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.KeyPrefix != p.KeyPrefix {
		if _, taken := s.byPrefix[p.KeyPrefix]; taken {
			return sentinel.ErrConflict
		}
		delete(s.byPrefix, existing.KeyPrefix)
		s.byPrefix[p.KeyPrefix] = p.ID
	}
	s.byID[p.ID] = p.Clone()
	return nil
}
