package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mvilaca/triage/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of ProcessStore and
// VersionStore backed by maps. All values are deep-copied through the codec
// on the way in and out, so it honors the same aliasing and revision rules
// as the durable stores.
type InMemoryStore struct {
	mu        sync.RWMutex
	processes map[string]*api.Process
	versions  map[string]*api.Version
	current   map[string]string // professionalID -> current version id
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		processes: make(map[string]*api.Process),
		versions:  make(map[string]*api.Version),
		current:   make(map[string]string),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ ProcessStore = (*InMemoryStore)(nil)

var _ VersionStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveProcess(ctx context.Context, p *api.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := p.Identification.IdentityDocument
	if doc != "" {
		for _, other := range s.processes {
			if other.TenantID == p.TenantID &&
				other.Identification.IdentityDocument == doc &&
				!other.Status.Terminal() {
				return ErrDuplicateActiveProcess
			}
		}
	}

	cp, err := CloneProcess(p)
	if err != nil {
		return err
	}
	s.processes[p.ID] = cp
	return nil
}

func (s *InMemoryStore) GetProcess(ctx context.Context, id string) (*api.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.processes[id]
	if !ok {
		return nil, ErrProcessNotFound
	}
	return CloneProcess(p)
}

func (s *InMemoryStore) FindActiveByIdentity(ctx context.Context, tenantID, document string) (*api.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if document == "" {
		return nil, ErrProcessNotFound
	}
	for _, p := range s.processes {
		if p.TenantID == tenantID &&
			p.Identification.IdentityDocument == document &&
			!p.Status.Terminal() {
			return CloneProcess(p)
		}
	}
	return nil, ErrProcessNotFound
}

func (s *InMemoryStore) FindByToken(ctx context.Context, token string) (*api.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if token == "" {
		return nil, ErrProcessNotFound
	}
	for _, p := range s.processes {
		if p.Token != nil && p.Token.Value == token {
			return CloneProcess(p)
		}
	}
	return nil, ErrProcessNotFound
}

func (s *InMemoryStore) ListProcesses(ctx context.Context, filter api.ProcessFilter) ([]*api.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Process
	for _, p := range s.processes {
		if filter.TenantID != "" && p.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		cp, err := CloneProcess(p)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *InMemoryStore) UpdateProcess(ctx context.Context, p *api.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.processes[p.ID]
	if !ok {
		return ErrProcessNotFound
	}
	if stored.Rev != p.Rev {
		return ErrConflict
	}
	for _, step := range p.Steps {
		ss := stored.Step(step.Type)
		if ss == nil || ss.Rev != step.Rev {
			return ErrConflict
		}
	}

	p.Rev++
	for _, step := range p.Steps {
		step.Rev++
	}
	cp, err := CloneProcess(p)
	if err != nil {
		// Roll the caller's revisions back; nothing was stored.
		p.Rev--
		for _, step := range p.Steps {
			step.Rev--
		}
		return err
	}
	s.processes[p.ID] = cp
	return nil
}

func (s *InMemoryStore) UpdateStep(ctx context.Context, processID string, step *api.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.processes[processID]
	if !ok {
		return ErrProcessNotFound
	}
	ss := stored.Step(step.Type)
	if ss == nil {
		return ErrProcessNotFound
	}
	if ss.Rev != step.Rev {
		return ErrConflict
	}

	step.Rev++
	cp, err := CloneStep(step)
	if err != nil {
		step.Rev--
		return err
	}
	for i, existing := range stored.Steps {
		if existing.Type == step.Type {
			stored.Steps[i] = cp
			break
		}
	}
	return nil
}

func (s *InMemoryStore) SaveVersion(ctx context.Context, v *api.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.versions {
		if other.ProfessionalID == v.ProfessionalID && other.Number == v.Number {
			return ErrDuplicateVersion
		}
	}
	cp, err := CloneVersion(v)
	if err != nil {
		return err
	}
	cp.Current = false
	s.versions[v.ID] = cp
	return nil
}

func (s *InMemoryStore) GetVersion(ctx context.Context, id string) (*api.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[id]
	if !ok {
		return nil, ErrVersionNotFound
	}
	return CloneVersion(v)
}

func (s *InMemoryStore) ListVersions(ctx context.Context, professionalID string) ([]*api.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Version
	for _, v := range s.versions {
		if v.ProfessionalID != professionalID {
			continue
		}
		cp, err := CloneVersion(v)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (s *InMemoryStore) CurrentVersion(ctx context.Context, professionalID string) (*api.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.current[professionalID]
	if !ok {
		return nil, ErrVersionNotFound
	}
	v, ok := s.versions[id]
	if !ok {
		return nil, ErrVersionNotFound
	}
	return CloneVersion(v)
}

func (s *InMemoryStore) MarkApplied(ctx context.Context, versionID, actorID string, at time.Time) (*api.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[versionID]
	if !ok {
		return nil, ErrVersionNotFound
	}
	if !v.Pending() {
		return nil, ErrNotPending
	}

	if prevID, ok := s.current[v.ProfessionalID]; ok {
		if prev, ok := s.versions[prevID]; ok {
			prev.Current = false
		}
	}

	applied := at
	v.AppliedAt = &applied
	v.AppliedBy = actorID
	v.Current = true
	s.current[v.ProfessionalID] = v.ID

	return CloneVersion(v)
}

func (s *InMemoryStore) MarkRejected(ctx context.Context, versionID, reason, actorID string, at time.Time) (*api.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[versionID]
	if !ok {
		return nil, ErrVersionNotFound
	}
	if !v.Pending() {
		return nil, ErrNotPending
	}

	rejected := at
	v.RejectedAt = &rejected
	v.RejectedBy = actorID
	v.RejectionReason = reason

	return CloneVersion(v)
}
