package audit

import (
	"context"
	"errors"
	"time"
)

// ErrAlertNotFound is returned when updating an alert that does not exist.
var ErrAlertNotFound = errors.New("security alert not found")

// EntryFilter selects audit entries by actor, action kinds, outcome, and
// time range. Zero-valued fields are ignored.
type EntryFilter struct {
	ActorID    string
	ActorEmail string
	Actions    []Action
	Success    *bool
	From       time.Time
	To         time.Time
}

// AlertFilter selects security alerts. Zero-valued fields are ignored.
type AlertFilter struct {
	Type         AlertType
	ActorID      string
	ActorEmail   string
	States       []AlertState
	CreatedAfter time.Time
}

// Store is the persistence contract the pipeline requires. The audit log
// is append-only: entries are created and queried, never updated (with
// the single exception of retention-driven IP anonymization, see
// IPAnonymizer). Alerts are mutable until resolved.
type Store interface {
	// CreateEntry appends one audit entry.
	CreateEntry(ctx context.Context, entry *Entry) error

	// CountEntries returns the number of entries matching the filter.
	CountEntries(ctx context.Context, f EntryFilter) (int, error)

	// FindRecentEntries returns matching entries, newest first.
	// limit == 0 means no limit.
	FindRecentEntries(ctx context.Context, f EntryFilter, limit int) ([]*Entry, error)

	// CreateAlert persists a new security alert.
	CreateAlert(ctx context.Context, alert *SecurityAlert) error

	// UpdateAlert persists changes to an existing alert.
	UpdateAlert(ctx context.Context, alert *SecurityAlert) error

	// FindOpenAlert returns the newest alert matching the filter, or
	// nil when none matches.
	FindOpenAlert(ctx context.Context, f AlertFilter) (*SecurityAlert, error)

	// FindAlerts returns matching alerts, newest first.
	// limit == 0 means no limit.
	FindAlerts(ctx context.Context, f AlertFilter, limit int) ([]*SecurityAlert, error)
}

// IPAnonymizer is implemented by stores that support retention-driven IP
// anonymization of old entries.
type IPAnonymizer interface {
	// AnonymizeEntryIPsBefore rewrites the IP column of entries older
	// than the cutoff with their anonymized form. Returns the number of
	// entries touched.
	AnonymizeEntryIPsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

func (f EntryFilter) matches(e *Entry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ActorEmail != "" && e.ActorEmail != f.ActorEmail {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func (f AlertFilter) matches(a *SecurityAlert) bool {
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.ActorID != "" && a.ActorID != f.ActorID {
		return false
	}
	if f.ActorEmail != "" && a.ActorEmail != f.ActorEmail {
		return false
	}
	if len(f.States) > 0 {
		found := false
		for _, s := range f.States {
			if a.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.CreatedAfter.IsZero() && a.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	return true
}
