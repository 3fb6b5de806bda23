package detect

import (
	"context"
	"log/slog"

	"github.com/onnwee/vigil/internal/audit"
)

// Analyzer runs every configured detector over a persisted entry.
// Detector failures are logged and isolated: one failing heuristic never
// prevents the others from running.
type Analyzer struct {
	detectors []Detector
	logger    *slog.Logger
	metrics   *Metrics
}

// NewAnalyzer builds the standard detector set over a store. It fails
// only on unusable configuration (bad thresholds or timezone).
func NewAnalyzer(store audit.Store, config Config, logger *slog.Logger, metrics *Metrics) (*Analyzer, error) {
	if errs := config.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	offHours, err := NewOffHoursDetector(config)
	if err != nil {
		return nil, err
	}
	return NewAnalyzerWith(logger, metrics,
		NewBruteForceDetector(store, config),
		NewUnusualGeoDetector(store, config),
		NewRapidChangeDetector(store, config),
		offHours,
		NewBulkDownloadDetector(store, config),
	), nil
}

// NewAnalyzerWith builds an analyzer over an explicit detector set.
func NewAnalyzerWith(logger *slog.Logger, metrics *Metrics, detectors ...Detector) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{detectors: detectors, logger: logger, metrics: metrics}
}

// Analyze implements audit.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, entry *audit.Entry) []audit.Finding {
	var findings []audit.Finding
	for _, d := range a.detectors {
		f, err := d.Analyze(ctx, entry)
		if err != nil {
			a.logger.Error("detector failed",
				"detector", d.Name(),
				"entry_id", entry.ID,
				"error", err)
			if a.metrics != nil {
				a.metrics.IncDetectorError(d.Name())
			}
			continue
		}
		if f == nil {
			continue
		}
		if a.metrics != nil {
			a.metrics.IncFinding(f.Type)
		}
		findings = append(findings, *f)
	}
	return findings
}
