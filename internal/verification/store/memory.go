// Package store persists verifications in memory or PostgreSQL.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"kycverify/internal/decision"
	"kycverify/internal/verification/models"
	id "kycverify/pkg/domain"
	"kycverify/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded store for development and tests. The mutex
// makes the dedup window check and the insert one atomic step.
type InMemory struct {
	mu    sync.RWMutex
	items map[id.VerificationID]*models.Verification
}

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[id.VerificationID]*models.Verification)}
}

// CreateUnlessRecent inserts v unless the project already has a PROCESSING
// verification created within window before v.CreatedAt. It returns the
// stored verification and whether it was created.
func (s *InMemory) CreateUnlessRecent(_ context.Context, v *models.Verification, window time.Duration) (*models.Verification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[v.ID]; exists {
		return nil, false, sentinel.ErrConflict
	}
	cutoff := v.CreatedAt.Add(-window)
	var recent *models.Verification
	for _, existing := range s.items {
		if existing.ProjectID != v.ProjectID || existing.Status != decision.StatusProcessing {
			continue
		}
		if existing.CreatedAt.Before(cutoff) {
			continue
		}
		if recent == nil || existing.CreatedAt.After(recent.CreatedAt) {
			recent = existing
		}
	}
	if recent != nil {
		return recent.Clone(), false, nil
	}
	s.items[v.ID] = v.Clone()
	return v.Clone(), true, nil
}

func (s *InMemory) FindByID(_ context.Context, vid id.VerificationID) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[vid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return v.Clone(), nil
}

func (s *InMemory) SetDocuments(_ context.Context, vid id.VerificationID, docs models.Documents) error {
	return s.update(vid, func(v *models.Verification) { v.Documents = docs })
}

func (s *InMemory) AppendEvent(_ context.Context, vid id.VerificationID, ev models.SessionEvent) error {
	return s.update(vid, func(v *models.Verification) { v.SessionEvents = append(v.SessionEvents, ev) })
}

// Complete records the terminal result once. It reports false without
// error when the verification was already terminal.
func (s *InMemory) Complete(_ context.Context, vid id.VerificationID, result models.Result) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[vid]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if _, changed := decision.Transition(v.Status, result.Outcome); !changed {
		return false, nil
	}
	result.Apply(v)
	return true, nil
}

func (s *InMemory) PatchEnrichment(_ context.Context, vid id.VerificationID, e models.Enrichment) error {
	return s.update(vid, func(v *models.Verification) {
		if e.DeviceInfo != nil {
			d := *e.DeviceInfo
			v.Client.DeviceInfo = &d
		}
		if e.Geolocation != nil {
			g := *e.Geolocation
			v.Client.Geolocation = &g
		}
	})
}

func (s *InMemory) ListByProject(_ context.Context, projectID id.ProjectID, filter models.ListFilter) (models.Page, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	var matched []*models.Verification
	for _, v := range s.items {
		if v.ProjectID != projectID {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		matched = append(matched, v)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.Verification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	page := models.Page{Total: len(matched), Page: filter.Page, Limit: filter.Limit, Items: []*models.Verification{}}
	start := min(filter.Offset(), len(matched))
	end := min(start+filter.Limit, len(matched))
	for _, v := range matched[start:end] {
		page.Items = append(page.Items, v.Clone())
	}
	return page, nil
}

// ListStale returns PROCESSING verifications created before cutoff, oldest first.
func (s *InMemory) ListStale(_ context.Context, cutoff time.Time, limit int) ([]id.VerificationID, error) {
	s.mu.RLock()
	var stale []*models.Verification
	for _, v := range s.items {
		if v.Status == decision.StatusProcessing && v.CreatedAt.Before(cutoff) {
			stale = append(stale, v)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(stale, func(a, b *models.Verification) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	ids := make([]id.VerificationID, 0, min(len(stale), limit))
	for _, v := range stale {
		if len(ids) == limit {
			break
		}
		ids = append(ids, v.ID)
	}
	return ids, nil
}

func (s *InMemory) update(vid id.VerificationID, fn func(*models.Verification)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[vid]
	if !ok {
		return sentinel.ErrNotFound
	}
	fn(v)
	return nil
}
