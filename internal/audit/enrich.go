package audit

import (
	"context"
	"fmt"
	"log/slog"
)

// Actor is the identity snapshot attached to an entry at write time.
type Actor struct {
	Email       string
	DisplayName string
}

// ActorDirectory resolves actor IDs to identity snapshots.
// Implementations return (nil, nil) on a miss; lookup failures are
// treated as misses by the enricher.
type ActorDirectory interface {
	FindActor(ctx context.Context, id string) (*Actor, error)
}

// actionCategories is the exhaustive action → category table.
// ValidateTaxonomy fails startup if an enumerated action is missing, so
// the GENERAL fallback in CategoryFor can only be hit by actions outside
// the enumeration.
var actionCategories = map[Action]Category{
	ActionLogin:              CategoryAuthentication,
	ActionLoginFailed:        CategoryAuthentication,
	ActionLogout:             CategoryAuthentication,
	ActionPasswordChanged:    CategorySecurity,
	ActionEmailChanged:       CategoryPersonalData,
	ActionPhoneChanged:       CategoryPersonalData,
	ActionProfileUpdated:     CategoryPersonalData,
	ActionTwoFactorEnabled:   CategorySecurity,
	ActionTwoFactorDisabled:  CategorySecurity,
	ActionAccessDenied:       CategoryAuthorization,
	ActionDocumentEmitted:    CategoryFinancialDocuments,
	ActionDocumentVoided:     CategoryFinancialDocuments,
	ActionDocumentDownloaded: CategoryFinancialDocuments,
	ActionDocumentExported:   CategoryFinancialDocuments,
	ActionFileUploaded:       CategoryFiles,
	ActionFileDownloaded:     CategoryFiles,
	ActionFileDeleted:        CategoryFiles,
	ActionUserCreated:        CategoryAdministration,
	ActionUserDeleted:        CategoryAdministration,
	ActionRoleChanged:        CategoryAdministration,
	ActionSettingsChanged:    CategoryAdministration,
	ActionMaintenanceRun:     CategorySystem,
}

// actionRisks is the exhaustive action → baseline risk table.
var actionRisks = map[Action]RiskLevel{
	ActionLogin:              RiskLow,
	ActionLoginFailed:        RiskMedium,
	ActionLogout:             RiskLow,
	ActionPasswordChanged:    RiskHigh,
	ActionEmailChanged:       RiskHigh,
	ActionPhoneChanged:       RiskMedium,
	ActionProfileUpdated:     RiskLow,
	ActionTwoFactorEnabled:   RiskMedium,
	ActionTwoFactorDisabled:  RiskHigh,
	ActionAccessDenied:       RiskMedium,
	ActionDocumentEmitted:    RiskMedium,
	ActionDocumentVoided:     RiskHigh,
	ActionDocumentDownloaded: RiskLow,
	ActionDocumentExported:   RiskMedium,
	ActionFileUploaded:       RiskLow,
	ActionFileDownloaded:     RiskLow,
	ActionFileDeleted:        RiskMedium,
	ActionUserCreated:        RiskMedium,
	ActionUserDeleted:        RiskHigh,
	ActionRoleChanged:        RiskCritical,
	ActionSettingsChanged:    RiskMedium,
	ActionMaintenanceRun:     RiskLow,
}

// ValidateTaxonomy verifies that every enumerated action has both a
// category and a risk mapping. Call it at startup so a new action kind
// without mappings fails fast instead of silently landing in GENERAL.
func ValidateTaxonomy() error {
	for _, a := range Actions() {
		if _, ok := actionCategories[a]; !ok {
			return fmt.Errorf("action %s has no category mapping", a)
		}
		if _, ok := actionRisks[a]; !ok {
			return fmt.Errorf("action %s has no risk mapping", a)
		}
	}
	return nil
}

// CategoryFor returns the category for an action, falling back to
// GENERAL for actions outside the enumerated taxonomy.
func CategoryFor(a Action) Category {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryGeneral
}

// RiskFor derives the risk level for an event. It is a pure function of
// (action, success, explicit): an explicit level always wins; otherwise
// the static table applies, escalated to at least MEDIUM when the event
// failed.
func RiskFor(a Action, success bool, explicit RiskLevel) RiskLevel {
	if explicit != "" {
		return explicit
	}
	risk, ok := actionRisks[a]
	if !ok {
		risk = RiskLow
	}
	if !success && !risk.AtLeast(RiskMedium) {
		risk = RiskMedium
	}
	return risk
}

// Enricher resolves actor identity and derives the device, category, and
// risk fields of an entry. All enrichment is best-effort: a directory
// miss or failure leaves whatever identity snapshot the event carried.
type Enricher struct {
	actors ActorDirectory
	logger *slog.Logger
}

// NewEnricher creates an Enricher. The directory may be nil, in which
// case actor resolution is skipped entirely.
func NewEnricher(actors ActorDirectory, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{actors: actors, logger: logger}
}

// Enrich fills the derived fields of an entry from its event.
func (e *Enricher) Enrich(ctx context.Context, entry *Entry, ev Event) {
	entry.Device = ParseUserAgent(ev.UserAgent)
	entry.Category = CategoryFor(ev.Action)
	entry.Risk = RiskFor(ev.Action, ev.Success, ev.Risk)
	entry.ActorEmail = ev.ActorEmail
	entry.ActorName = ev.ActorName

	if e.actors == nil || ev.ActorID == "" {
		return
	}
	actor, err := e.actors.FindActor(ctx, ev.ActorID)
	if err != nil {
		e.logger.Debug("actor lookup failed", "actor_id", ev.ActorID, "error", err)
		return
	}
	if actor == nil {
		return
	}
	entry.ActorEmail = actor.Email
	entry.ActorName = actor.DisplayName
}
