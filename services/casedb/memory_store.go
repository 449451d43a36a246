package casedb

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps cases in process memory. It backs tests and
// single-node deployments without a database.
type MemoryStore struct {
	mu           sync.RWMutex
	cases        map[string]Case
	stakeholders map[string]map[string]string // case -> user -> role
	alternatives map[string][]Alternative
	properties   map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:        make(map[string]Case),
		stakeholders: make(map[string]map[string]string),
		alternatives: make(map[string][]Alternative),
		properties:   make(map[string]map[string]string),
	}
}

func (m *MemoryStore) CreateCase(_ context.Context, c Case, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cases[c.ID] = c
	m.stakeholders[c.ID] = map[string]string{owner: RoleOwner}
	m.properties[c.ID] = make(map[string]string)
	return nil
}

func (m *MemoryStore) GetCase(_ context.Context, id string) (Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[id]
	if !ok {
		return Case{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) DeleteCase(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cases[id]; !ok {
		return ErrNotFound
	}
	delete(m.cases, id)
	delete(m.stakeholders, id)
	delete(m.alternatives, id)
	delete(m.properties, id)
	return nil
}

func (m *MemoryStore) UserCases(_ context.Context, userID string) ([]Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Case{}
	for id, users := range m.stakeholders {
		if _, ok := users[userID]; ok {
			out = append(out, m.cases[id])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Role(_ context.Context, caseID, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	role, ok := m.stakeholders[caseID][userID]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}

func (m *MemoryStore) SetStakeholder(_ context.Context, s Stakeholder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.stakeholders[s.CaseID]
	if !ok {
		return ErrNotFound
	}
	users[s.UserID] = s.Role
	return nil
}

func (m *MemoryStore) Stakeholders(_ context.Context, caseID string) ([]Stakeholder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []Stakeholder{}
	for user, role := range m.stakeholders[caseID] {
		out = append(out, Stakeholder{CaseID: caseID, UserID: user, Role: role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) AddAlternative(_ context.Context, a Alternative) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cases[a.CaseID]; !ok {
		return ErrNotFound
	}
	m.alternatives[a.CaseID] = append(m.alternatives[a.CaseID], a)
	return nil
}

func (m *MemoryStore) Alternatives(_ context.Context, caseID string) ([]Alternative, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Alternative{}, m.alternatives[caseID]...), nil
}

func (m *MemoryStore) SetProperty(_ context.Context, caseID, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	props, ok := m.properties[caseID]
	if !ok {
		return ErrNotFound
	}
	props[name] = value
	return nil
}

func (m *MemoryStore) Property(_ context.Context, caseID, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.properties[caseID][name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Properties(_ context.Context, caseID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.properties[caseID]))
	for k, v := range m.properties[caseID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
