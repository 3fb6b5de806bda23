package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of Store. Used for
// testing and development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	alerts  map[string]*SecurityAlert
	// Maintain insertion order for newest-first queries.
	alertOrder []string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		alerts: make(map[string]*SecurityAlert),
	}
}

// CreateEntry appends one audit entry.
func (s *InMemoryStore) CreateEntry(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	c := copyEntry(entry)
	s.mu.Lock()
	s.entries = append(s.entries, c)
	s.mu.Unlock()
	return nil
}

// CountEntries returns the number of entries matching the filter.
func (s *InMemoryStore) CountEntries(ctx context.Context, f EntryFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entries {
		if f.matches(e) {
			count++
		}
	}
	return count, nil
}

// FindRecentEntries returns matching entries, newest first.
func (s *InMemoryStore) FindRecentEntries(ctx context.Context, f EntryFilter, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !f.matches(e) {
			continue
		}
		results = append(results, copyEntry(e))
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// CreateAlert persists a new security alert.
func (s *InMemoryStore) CreateAlert(ctx context.Context, alert *SecurityAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	c := copyAlert(alert)
	s.mu.Lock()
	s.alerts[c.ID] = c
	s.alertOrder = append(s.alertOrder, c.ID)
	s.mu.Unlock()
	return nil
}

// UpdateAlert persists changes to an existing alert.
func (s *InMemoryStore) UpdateAlert(ctx context.Context, alert *SecurityAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[alert.ID]; !ok {
		return ErrAlertNotFound
	}
	s.alerts[alert.ID] = copyAlert(alert)
	return nil
}

// FindOpenAlert returns the newest alert matching the filter, or nil.
func (s *InMemoryStore) FindOpenAlert(ctx context.Context, f AlertFilter) (*SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		a := s.alerts[s.alertOrder[i]]
		if f.matches(a) {
			return copyAlert(a), nil
		}
	}
	return nil, nil
}

// FindAlerts returns matching alerts, newest first.
func (s *InMemoryStore) FindAlerts(ctx context.Context, f AlertFilter, limit int) ([]*SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*SecurityAlert
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		a := s.alerts[s.alertOrder[i]]
		if !f.matches(a) {
			continue
		}
		results = append(results, copyAlert(a))
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// AnonymizeEntryIPsBefore implements IPAnonymizer.
func (s *InMemoryStore) AnonymizeEntryIPsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := 0
	for _, e := range s.entries {
		if e.IPAddress == "" || !e.CreatedAt.Before(cutoff) {
			continue
		}
		anon := AnonymizeIP(e.IPAddress)
		if anon != "" && anon != e.IPAddress {
			e.IPAddress = anon
			touched++
		}
	}
	return touched, nil
}

// copyEntry returns a shallow copy of an entry. Payload fields are
// shared, which is safe: sanitized payloads are never mutated after the
// write.
func copyEntry(e *Entry) *Entry {
	c := *e
	if e.Location != nil {
		loc := *e.Location
		c.Location = &loc
	}
	return &c
}

func copyAlert(a *SecurityAlert) *SecurityAlert {
	c := *a
	c.EntryIDs = append([]string(nil), a.EntryIDs...)
	if a.Location != nil {
		loc := *a.Location
		c.Location = &loc
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	if a.NotifiedAt != nil {
		t := *a.NotifiedAt
		c.NotifiedAt = &t
	}
	return &c
}
