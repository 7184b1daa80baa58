// Package memory provides an in-memory audit store used by unit tests and
// local development. Filter semantics mirror the postgres store exactly so
// the query service behaves the same against either.
package memory

import (
	"context"
	"sort"
	"sync"

	"peopledesk/internal/audit"
	id "peopledesk/pkg/domain"
)

type Store struct {
	mu      sync.RWMutex
	entries map[id.TenantID][]audit.Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[id.TenantID][]audit.Entry)}
}

// Append stores a copy of the entry. There is deliberately no update or
// delete on this type.
func (s *Store) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.TenantID] = append(s.entries[entry.TenantID], *entry)
	return nil
}

func (s *Store) List(_ context.Context, tenantID id.TenantID, filter audit.Filter) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.Entry
	for _, entry := range s.entries[tenantID] {
		if matches(entry, filter) {
			matched = append(matched, entry)
		}
	}

	// Newest first; ties keep append order.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *Store) Count(_ context.Context, tenantID id.TenantID, filter audit.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, entry := range s.entries[tenantID] {
		if matches(entry, filter) {
			count++
		}
	}
	return count, nil
}

func matches(entry audit.Entry, filter audit.Filter) bool {
	if filter.ResourceType != "" && entry.ResourceType != filter.ResourceType {
		return false
	}
	if filter.ResourceID != "" && entry.ResourceID != filter.ResourceID {
		return false
	}
	if !filter.UserID.IsNil() && entry.UserID != filter.UserID {
		return false
	}
	if filter.Action != "" && entry.Action != filter.Action {
		return false
	}
	if !filter.Start.IsZero() && entry.CreatedAt.Before(filter.Start) {
		return false
	}
	if !filter.End.IsZero() && entry.CreatedAt.After(filter.End) {
		return false
	}
	return true
}
