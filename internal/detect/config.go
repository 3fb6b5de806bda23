// Package detect implements the behavioral heuristics that inspect
// recent audit history and emit findings. Each detector is independent:
// it triggers only on specific action kinds, issues one bounded
// historical query, and a failure in one never prevents the others from
// running.
package detect

import (
	"fmt"
	"time"

	"github.com/onnwee/vigil/internal/audit"
)

// Defaults for detector thresholds and windows. All of them are
// per-deployment tunables via Config; nothing is hard-coded at call
// sites.
const (
	DefaultBruteForceWindow    = 15 * time.Minute
	DefaultBruteForceThreshold = 5

	DefaultUnusualGeoWindow  = 30 * 24 * time.Hour
	DefaultUnusualGeoHistory = 10

	DefaultRapidChangeWindow    = 60 * time.Minute
	DefaultRapidChangeThreshold = 3

	DefaultNightStartHour = 0
	DefaultNightEndHour   = 5
	DefaultTimezone       = "America/Bogota"

	DefaultBulkDownloadWindow    = 10 * time.Minute
	DefaultBulkDownloadThreshold = 10
)

// maxFindingEntries bounds how many contributing entry IDs a count-based
// detector attaches to a finding.
const maxFindingEntries = 50

// Config holds the tuning knobs for every detector.
type Config struct {
	BruteForceWindow    time.Duration
	BruteForceThreshold int
	BruteForceSeverity  audit.RiskLevel

	UnusualGeoWindow   time.Duration
	UnusualGeoHistory  int
	UnusualGeoSeverity audit.RiskLevel

	RapidChangeWindow    time.Duration
	RapidChangeThreshold int
	RapidChangeSeverity  audit.RiskLevel

	// NightStartHour/NightEndHour delimit the nocturnal band
	// [start, end) in the reference timezone's wall clock. A band that
	// wraps midnight (start > end) is supported.
	NightStartHour   int
	NightEndHour     int
	Timezone         string
	OffHoursSeverity audit.RiskLevel

	BulkDownloadWindow    time.Duration
	BulkDownloadThreshold int
	BulkDownloadSeverity  audit.RiskLevel
}

// DefaultConfig returns the default detector tuning.
func DefaultConfig() Config {
	return Config{
		BruteForceWindow:    DefaultBruteForceWindow,
		BruteForceThreshold: DefaultBruteForceThreshold,
		BruteForceSeverity:  audit.RiskHigh,

		UnusualGeoWindow:   DefaultUnusualGeoWindow,
		UnusualGeoHistory:  DefaultUnusualGeoHistory,
		UnusualGeoSeverity: audit.RiskMedium,

		RapidChangeWindow:    DefaultRapidChangeWindow,
		RapidChangeThreshold: DefaultRapidChangeThreshold,
		RapidChangeSeverity:  audit.RiskMedium,

		NightStartHour:   DefaultNightStartHour,
		NightEndHour:     DefaultNightEndHour,
		Timezone:         DefaultTimezone,
		OffHoursSeverity: audit.RiskLow,

		BulkDownloadWindow:    DefaultBulkDownloadWindow,
		BulkDownloadThreshold: DefaultBulkDownloadThreshold,
		BulkDownloadSeverity:  audit.RiskHigh,
	}
}

// Validate checks that thresholds, windows, and the nocturnal band are
// usable.
func (c Config) Validate() []error {
	var errs []error
	if c.BruteForceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("BruteForceThreshold must be > 0 (got %d)", c.BruteForceThreshold))
	}
	if c.BruteForceWindow <= 0 {
		errs = append(errs, fmt.Errorf("BruteForceWindow must be > 0 (got %s)", c.BruteForceWindow))
	}
	if c.UnusualGeoHistory <= 0 {
		errs = append(errs, fmt.Errorf("UnusualGeoHistory must be > 0 (got %d)", c.UnusualGeoHistory))
	}
	if c.UnusualGeoWindow <= 0 {
		errs = append(errs, fmt.Errorf("UnusualGeoWindow must be > 0 (got %s)", c.UnusualGeoWindow))
	}
	if c.RapidChangeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("RapidChangeThreshold must be > 0 (got %d)", c.RapidChangeThreshold))
	}
	if c.RapidChangeWindow <= 0 {
		errs = append(errs, fmt.Errorf("RapidChangeWindow must be > 0 (got %s)", c.RapidChangeWindow))
	}
	if c.NightStartHour < 0 || c.NightStartHour > 23 {
		errs = append(errs, fmt.Errorf("NightStartHour must be in [0,23] (got %d)", c.NightStartHour))
	}
	if c.NightEndHour < 0 || c.NightEndHour > 24 {
		errs = append(errs, fmt.Errorf("NightEndHour must be in [0,24] (got %d)", c.NightEndHour))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid Timezone %q: %w", c.Timezone, err))
	}
	if c.BulkDownloadThreshold <= 0 {
		errs = append(errs, fmt.Errorf("BulkDownloadThreshold must be > 0 (got %d)", c.BulkDownloadThreshold))
	}
	if c.BulkDownloadWindow <= 0 {
		errs = append(errs, fmt.Errorf("BulkDownloadWindow must be > 0 (got %s)", c.BulkDownloadWindow))
	}
	return errs
}
