package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/onnwee/vigil/internal/audit"
)

// Detector is one independent heuristic over the audit trail.
// Analyze returns a finding, or nil when the entry is not anomalous or
// does not trigger the heuristic at all. Detectors query aggregate
// state, so analyzing events out of arrival order is safe.
type Detector interface {
	Name() audit.AlertType
	Analyze(ctx context.Context, entry *audit.Entry) (*audit.Finding, error)
}

// BruteForceDetector flags repeated failed logins for one actor email
// inside a trailing window.
type BruteForceDetector struct {
	store  audit.Store
	config Config
}

// NewBruteForceDetector creates the brute-force detector.
func NewBruteForceDetector(store audit.Store, config Config) *BruteForceDetector {
	return &BruteForceDetector{store: store, config: config}
}

// Name implements Detector.
func (d *BruteForceDetector) Name() audit.AlertType { return audit.AlertBruteForceLogin }

// Analyze implements Detector. The triggering entry is already
// persisted, so it is part of the counted window.
func (d *BruteForceDetector) Analyze(ctx context.Context, entry *audit.Entry) (*audit.Finding, error) {
	if entry.Action != audit.ActionLoginFailed || entry.ActorEmail == "" {
		return nil, nil
	}

	matched, err := d.store.FindRecentEntries(ctx, audit.EntryFilter{
		ActorEmail: entry.ActorEmail,
		Actions:    []audit.Action{audit.ActionLoginFailed},
		From:       entry.CreatedAt.Add(-d.config.BruteForceWindow),
	}, maxFindingEntries)
	if err != nil {
		return nil, fmt.Errorf("brute force query failed: %w", err)
	}
	if len(matched) < d.config.BruteForceThreshold {
		return nil, nil
	}

	return &audit.Finding{
		Type:     audit.AlertBruteForceLogin,
		Severity: d.config.BruteForceSeverity,
		Title:    "Possible brute-force login attack",
		Description: fmt.Sprintf("%d failed logins for %s within %s",
			len(matched), entry.ActorEmail, d.config.BruteForceWindow),
		ActorID:    entry.ActorID,
		ActorEmail: entry.ActorEmail,
		IPAddress:  entry.IPAddress,
		Location:   entry.Location,
		EntryIDs:   entryIDs(matched),
		Metadata: map[string]any{
			"failed_count": len(matched),
			"window":       d.config.BruteForceWindow.String(),
		},
	}, nil
}

// UnusualGeoDetector flags a successful login from a country absent
// from the actor's recent login history. A first-ever login is not
// anomalous: with no prior countries there is nothing to deviate from.
type UnusualGeoDetector struct {
	store  audit.Store
	config Config
}

// NewUnusualGeoDetector creates the unusual-geography detector.
func NewUnusualGeoDetector(store audit.Store, config Config) *UnusualGeoDetector {
	return &UnusualGeoDetector{store: store, config: config}
}

// Name implements Detector.
func (d *UnusualGeoDetector) Name() audit.AlertType { return audit.AlertUnusualGeography }

// Analyze implements Detector.
func (d *UnusualGeoDetector) Analyze(ctx context.Context, entry *audit.Entry) (*audit.Finding, error) {
	if entry.Action != audit.ActionLogin || !entry.Success ||
		entry.ActorID == "" || entry.Location == nil || entry.Location.Country == "" {
		return nil, nil
	}

	success := true
	// Fetch one extra entry so the triggering login itself can be
	// excluded from the history.
	recent, err := d.store.FindRecentEntries(ctx, audit.EntryFilter{
		ActorID: entry.ActorID,
		Actions: []audit.Action{audit.ActionLogin},
		Success: &success,
		From:    entry.CreatedAt.Add(-d.config.UnusualGeoWindow),
	}, d.config.UnusualGeoHistory+1)
	if err != nil {
		return nil, fmt.Errorf("login history query failed: %w", err)
	}

	seen := make(map[string]bool)
	prior := 0
	for _, e := range recent {
		if e.ID == entry.ID {
			continue
		}
		prior++
		if prior > d.config.UnusualGeoHistory {
			break
		}
		if e.Location != nil && e.Location.Country != "" {
			seen[e.Location.Country] = true
		}
	}

	// First recorded login for this actor: no baseline, no finding.
	if prior == 0 {
		return nil, nil
	}
	if seen[entry.Location.Country] {
		return nil, nil
	}

	return &audit.Finding{
		Type:     audit.AlertUnusualGeography,
		Severity: d.config.UnusualGeoSeverity,
		Title:    "Login from unusual location",
		Description: fmt.Sprintf("login for %s from %s, not seen in the last %d logins",
			entry.ActorEmail, entry.Location.Country, d.config.UnusualGeoHistory),
		ActorID:    entry.ActorID,
		ActorEmail: entry.ActorEmail,
		IPAddress:  entry.IPAddress,
		Location:   entry.Location,
		EntryIDs:   []string{entry.ID},
		Metadata: map[string]any{
			"country":         entry.Location.Country,
			"known_countries": countryList(seen),
		},
	}, nil
}

// RapidChangeDetector flags bursts of profile/security mutations for one
// actor inside a trailing window.
type RapidChangeDetector struct {
	store  audit.Store
	config Config
}

// NewRapidChangeDetector creates the rapid-account-changes detector.
func NewRapidChangeDetector(store audit.Store, config Config) *RapidChangeDetector {
	return &RapidChangeDetector{store: store, config: config}
}

// rapidChangeActions are the account-mutation kinds the detector counts.
var rapidChangeActions = []audit.Action{
	audit.ActionProfileUpdated,
	audit.ActionPasswordChanged,
	audit.ActionEmailChanged,
	audit.ActionPhoneChanged,
}

// Name implements Detector.
func (d *RapidChangeDetector) Name() audit.AlertType { return audit.AlertRapidAccountChanges }

// Analyze implements Detector.
func (d *RapidChangeDetector) Analyze(ctx context.Context, entry *audit.Entry) (*audit.Finding, error) {
	if entry.ActorID == "" || !actionIn(entry.Action, rapidChangeActions) {
		return nil, nil
	}

	matched, err := d.store.FindRecentEntries(ctx, audit.EntryFilter{
		ActorID: entry.ActorID,
		Actions: rapidChangeActions,
		From:    entry.CreatedAt.Add(-d.config.RapidChangeWindow),
	}, maxFindingEntries)
	if err != nil {
		return nil, fmt.Errorf("account change query failed: %w", err)
	}
	if len(matched) < d.config.RapidChangeThreshold {
		return nil, nil
	}

	return &audit.Finding{
		Type:     audit.AlertRapidAccountChanges,
		Severity: d.config.RapidChangeSeverity,
		Title:    "Rapid account changes",
		Description: fmt.Sprintf("%d account changes for %s within %s",
			len(matched), entry.ActorEmail, d.config.RapidChangeWindow),
		ActorID:    entry.ActorID,
		ActorEmail: entry.ActorEmail,
		IPAddress:  entry.IPAddress,
		Location:   entry.Location,
		EntryIDs:   entryIDs(matched),
		Metadata: map[string]any{
			"change_count": len(matched),
			"window":       d.config.RapidChangeWindow.String(),
		},
	}, nil
}

// OffHoursDetector flags every successful login whose wall-clock hour in
// the reference timezone falls in the nocturnal band. There is no
// history requirement, so this is the noisiest heuristic; tune the band
// or severity per deployment rather than expecting a threshold here.
type OffHoursDetector struct {
	config   Config
	location *time.Location
}

// NewOffHoursDetector creates the off-hours detector, resolving the
// configured reference timezone once.
func NewOffHoursDetector(config Config) (*OffHoursDetector, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", config.Timezone, err)
	}
	return &OffHoursDetector{config: config, location: loc}, nil
}

// Name implements Detector.
func (d *OffHoursDetector) Name() audit.AlertType { return audit.AlertOffHoursLogin }

// Analyze implements Detector. It issues no historical query.
func (d *OffHoursDetector) Analyze(ctx context.Context, entry *audit.Entry) (*audit.Finding, error) {
	if entry.Action != audit.ActionLogin || !entry.Success {
		return nil, nil
	}

	hour := entry.CreatedAt.In(d.location).Hour()
	if !inNocturnalBand(hour, d.config.NightStartHour, d.config.NightEndHour) {
		return nil, nil
	}

	return &audit.Finding{
		Type:     audit.AlertOffHoursLogin,
		Severity: d.config.OffHoursSeverity,
		Title:    "Login at unusual hours",
		Description: fmt.Sprintf("login for %s at %02d:00 %s",
			entry.ActorEmail, hour, d.config.Timezone),
		ActorID:    entry.ActorID,
		ActorEmail: entry.ActorEmail,
		IPAddress:  entry.IPAddress,
		Location:   entry.Location,
		EntryIDs:   []string{entry.ID},
		Metadata: map[string]any{
			"local_hour": hour,
			"timezone":   d.config.Timezone,
		},
	}, nil
}

// BulkDownloadDetector flags bursts of download/export actions for one
// actor inside a trailing window.
type BulkDownloadDetector struct {
	store  audit.Store
	config Config
}

// NewBulkDownloadDetector creates the bulk-download detector.
func NewBulkDownloadDetector(store audit.Store, config Config) *BulkDownloadDetector {
	return &BulkDownloadDetector{store: store, config: config}
}

// bulkDownloadActions are the exfiltration-shaped kinds the detector
// counts.
var bulkDownloadActions = []audit.Action{
	audit.ActionDocumentDownloaded,
	audit.ActionDocumentExported,
	audit.ActionFileDownloaded,
}

// Name implements Detector.
func (d *BulkDownloadDetector) Name() audit.AlertType { return audit.AlertBulkDownload }

// Analyze implements Detector.
func (d *BulkDownloadDetector) Analyze(ctx context.Context, entry *audit.Entry) (*audit.Finding, error) {
	if entry.ActorID == "" || !actionIn(entry.Action, bulkDownloadActions) {
		return nil, nil
	}

	matched, err := d.store.FindRecentEntries(ctx, audit.EntryFilter{
		ActorID: entry.ActorID,
		Actions: bulkDownloadActions,
		From:    entry.CreatedAt.Add(-d.config.BulkDownloadWindow),
	}, maxFindingEntries)
	if err != nil {
		return nil, fmt.Errorf("download query failed: %w", err)
	}
	if len(matched) < d.config.BulkDownloadThreshold {
		return nil, nil
	}

	return &audit.Finding{
		Type:     audit.AlertBulkDownload,
		Severity: d.config.BulkDownloadSeverity,
		Title:    "Bulk document download",
		Description: fmt.Sprintf("%d downloads for %s within %s",
			len(matched), entry.ActorEmail, d.config.BulkDownloadWindow),
		ActorID:    entry.ActorID,
		ActorEmail: entry.ActorEmail,
		IPAddress:  entry.IPAddress,
		Location:   entry.Location,
		EntryIDs:   entryIDs(matched),
		Metadata: map[string]any{
			"download_count": len(matched),
			"window":         d.config.BulkDownloadWindow.String(),
		},
	}, nil
}

// inNocturnalBand reports whether hour falls in [start, end), supporting
// bands that wrap midnight.
func inNocturnalBand(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func actionIn(a audit.Action, set []audit.Action) bool {
	for _, s := range set {
		if a == s {
			return true
		}
	}
	return false
}

func entryIDs(entries []*audit.Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func countryList(seen map[string]bool) []string {
	countries := make([]string, 0, len(seen))
	for c := range seen {
		countries = append(countries, c)
	}
	return countries
}
