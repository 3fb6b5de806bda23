// Package audit turns raw application events into an immutable,
// privacy-sanitized audit trail and feeds the trail to the anomaly
// detectors and the alert aggregator.
package audit

import (
	"time"
)

// Action identifies an observable application event.
type Action string

// Enumerated action taxonomy. Every action must have a category and risk
// mapping in enrich.go; ValidateTaxonomy enforces this at startup.
const (
	ActionLogin              Action = "LOGIN"
	ActionLoginFailed        Action = "LOGIN_FAILED"
	ActionLogout             Action = "LOGOUT"
	ActionPasswordChanged    Action = "PASSWORD_CHANGED"
	ActionEmailChanged       Action = "EMAIL_CHANGED"
	ActionPhoneChanged       Action = "PHONE_CHANGED"
	ActionProfileUpdated     Action = "PROFILE_UPDATED"
	ActionTwoFactorEnabled   Action = "TWO_FACTOR_ENABLED"
	ActionTwoFactorDisabled  Action = "TWO_FACTOR_DISABLED"
	ActionAccessDenied       Action = "ACCESS_DENIED"
	ActionDocumentEmitted    Action = "DOCUMENT_EMITTED"
	ActionDocumentVoided     Action = "DOCUMENT_VOIDED"
	ActionDocumentDownloaded Action = "DOCUMENT_DOWNLOADED"
	ActionDocumentExported   Action = "DOCUMENT_EXPORTED"
	ActionFileUploaded       Action = "FILE_UPLOADED"
	ActionFileDownloaded     Action = "FILE_DOWNLOADED"
	ActionFileDeleted        Action = "FILE_DELETED"
	ActionUserCreated        Action = "USER_CREATED"
	ActionUserDeleted        Action = "USER_DELETED"
	ActionRoleChanged        Action = "ROLE_CHANGED"
	ActionSettingsChanged    Action = "SETTINGS_CHANGED"
	ActionMaintenanceRun     Action = "MAINTENANCE_RUN"
)

// Actions returns every enumerated action. Used by the startup taxonomy
// check and by tests.
func Actions() []Action {
	return []Action{
		ActionLogin, ActionLoginFailed, ActionLogout,
		ActionPasswordChanged, ActionEmailChanged, ActionPhoneChanged,
		ActionProfileUpdated, ActionTwoFactorEnabled, ActionTwoFactorDisabled,
		ActionAccessDenied,
		ActionDocumentEmitted, ActionDocumentVoided, ActionDocumentDownloaded,
		ActionDocumentExported,
		ActionFileUploaded, ActionFileDownloaded, ActionFileDeleted,
		ActionUserCreated, ActionUserDeleted, ActionRoleChanged,
		ActionSettingsChanged, ActionMaintenanceRun,
	}
}

// Category groups actions for reporting and retention policy.
type Category string

const (
	CategoryAuthentication     Category = "AUTHENTICATION"
	CategoryAuthorization      Category = "AUTHORIZATION"
	CategoryFinancialDocuments Category = "FINANCIAL_DOCUMENTS"
	CategoryPersonalData       Category = "PERSONAL_DATA"
	CategoryFiles              Category = "FILES"
	CategoryAdministration     Category = "ADMINISTRATION"
	CategorySecurity           Category = "SECURITY"
	CategorySystem             Category = "SYSTEM"
	CategoryGeneral            Category = "GENERAL"
)

// RiskLevel is the severity scale shared by entries, findings, and alerts.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// AtLeast reports whether r is at or above the given level.
// Unknown levels rank below LOW.
func (r RiskLevel) AtLeast(min RiskLevel) bool {
	return riskRank[r] >= riskRank[min]
}

// Location is a resolved IP geolocation. Absent fields are zero values.
type Location struct {
	Country   string  `json:"country"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DeviceInfo is the device/browser/OS tri-tuple parsed from a user agent.
type DeviceInfo struct {
	Device  string `json:"device"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// Event is the input to the pipeline: one observable action, owned by the
// caller until handed to Pipeline.Record.
type Event struct {
	Action  Action
	ActorID string

	// Caller-supplied identity snapshot. The directory lookup, when one
	// is configured and hits, overrides these.
	ActorEmail string
	ActorName  string

	Resource     string
	Success      bool
	ErrorCode    string
	ErrorMessage string

	// Structured payloads; sanitized copies are persisted, the originals
	// are never mutated.
	Before  any
	After   any
	Details any

	// Request metadata.
	IPAddress  string
	UserAgent  string
	Method     string
	Path       string
	DurationMS int64
	RequestID  string
	SessionID  string

	// Risk overrides the static action mapping when set.
	Risk RiskLevel
}

// Entry is one persisted, append-only audit record. Once written its
// fields are never updated; the actor email/name are snapshots taken at
// write time, not live references.
type Entry struct {
	ID           string     `json:"id"`
	Action       Action     `json:"action"`
	ActorID      string     `json:"actor_id,omitempty"`
	ActorEmail   string     `json:"actor_email,omitempty"`
	ActorName    string     `json:"actor_name,omitempty"`
	Resource     string     `json:"resource,omitempty"`
	Success      bool       `json:"success"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Before       any        `json:"before,omitempty"`
	After        any        `json:"after,omitempty"`
	Details      any        `json:"details,omitempty"`
	IPAddress    string     `json:"ip_address,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	Device       DeviceInfo `json:"device"`
	Location     *Location  `json:"location,omitempty"`
	Category     Category   `json:"category"`
	Risk         RiskLevel  `json:"risk"`
	Method       string     `json:"method,omitempty"`
	Path         string     `json:"path,omitempty"`
	DurationMS   int64      `json:"duration_ms,omitempty"`
	RequestID    string     `json:"request_id,omitempty"`
	SessionID    string     `json:"session_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AlertType names the heuristic that produced a finding or alert.
type AlertType string

const (
	AlertBruteForceLogin     AlertType = "brute_force_login"
	AlertUnusualGeography    AlertType = "unusual_geography"
	AlertRapidAccountChanges AlertType = "rapid_account_changes"
	AlertOffHoursLogin       AlertType = "off_hours_login"
	AlertBulkDownload        AlertType = "bulk_download"
)

// Finding is a detector's output: a candidate anomaly, not yet an alert.
type Finding struct {
	Type        AlertType
	Severity    RiskLevel
	Title       string
	Description string
	ActorID     string
	ActorEmail  string
	IPAddress   string
	Location    *Location
	// EntryIDs are the audit entries that contributed to the finding,
	// newest first. Count-based detectors include the whole matched
	// window, not just the triggering entry.
	EntryIDs []string
	Metadata map[string]any
}

// AlertState tracks the review lifecycle of a security alert.
type AlertState string

const (
	AlertPending  AlertState = "PENDING"
	AlertInReview AlertState = "IN_REVIEW"
	AlertResolved AlertState = "RESOLVED"
)

// SecurityAlert is a persisted, deduplicated record of one or more
// findings. It is mutable until resolved: repeated findings of the same
// type for the same actor inside the dedup window merge into the open
// alert instead of creating a new row.
type SecurityAlert struct {
	ID          string         `json:"id"`
	Type        AlertType      `json:"type"`
	Severity    RiskLevel      `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ActorID     string         `json:"actor_id,omitempty"`
	ActorEmail  string         `json:"actor_email,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	Location    *Location      `json:"location,omitempty"`
	EntryIDs    []string       `json:"entry_ids"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	State       AlertState     `json:"state"`
	Notified    bool           `json:"notified"`
	NotifiedAt  *time.Time     `json:"notified_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
