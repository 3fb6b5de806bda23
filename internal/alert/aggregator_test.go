package alert

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/vigil/internal/audit"
	"github.com/onnwee/vigil/internal/jobs"
)

// recordingReporter captures job outcomes; IncJobsTotal signals done
// because Track reports the outcome last.
type recordingReporter struct {
	mu       sync.Mutex
	statuses map[string][]string
	done     chan struct{}
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{
		statuses: make(map[string][]string),
		done:     make(chan struct{}, 8),
	}
}

func (r *recordingReporter) IncJobsTotal(jobType, status string) {
	r.mu.Lock()
	r.statuses[jobType] = append(r.statuses[jobType], status)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingReporter) ObserveJobDuration(jobType string, seconds float64) {}

func (r *recordingReporter) IncJobErrors(jobType, errorType string) {}

func (r *recordingReporter) wait(t *testing.T, jobType string) []string {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job report")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses[jobType]...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*audit.SecurityAlert
	done   chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{}, 8)}
}

func (n *recordingNotifier) NotifyAdmins(ctx context.Context, alert *audit.SecurityAlert) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, alert)
	n.mu.Unlock()
	n.done <- struct{}{}
	return nil
}

func (n *recordingNotifier) wait(t *testing.T) *audit.SecurityAlert {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.alerts[len(n.alerts)-1]
}

func finding(sev audit.RiskLevel, ids ...string) audit.Finding {
	return audit.Finding{
		Type:        audit.AlertBruteForceLogin,
		Severity:    sev,
		Title:       "Possible brute-force login attack",
		Description: "5 failed logins",
		ActorEmail:  "maria@example.com",
		EntryIDs:    ids,
	}
}

func TestUpsert_CreatesPendingAlert(t *testing.T) {
	store := audit.NewInMemoryStore()
	g := NewAggregator(store, nil, Config{})

	created, err := g.Upsert(context.Background(), finding(audit.RiskHigh, "e1", "e2"))
	if err != nil {
		t.Fatalf("Upsert() returned error: %v", err)
	}
	if created.State != audit.AlertPending {
		t.Errorf("State = %s, want %s", created.State, audit.AlertPending)
	}
	if created.Notified {
		t.Error("Notified = true, want false without a notifier")
	}
	if len(created.EntryIDs) != 2 {
		t.Errorf("len(EntryIDs) = %d, want 2", len(created.EntryIDs))
	}
}

func TestUpsert_MergesWithinDedupWindow(t *testing.T) {
	store := audit.NewInMemoryStore()
	g := NewAggregator(store, nil, Config{DedupWindow: time.Hour})
	ctx := context.Background()

	first, err := g.Upsert(ctx, finding(audit.RiskMedium, "e1", "e2"))
	if err != nil {
		t.Fatalf("first Upsert() returned error: %v", err)
	}

	second, err := g.Upsert(ctx, finding(audit.RiskHigh, "e2", "e3"))
	if err != nil {
		t.Fatalf("second Upsert() returned error: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("second Upsert created alert %s, want merge into %s", second.ID, first.ID)
	}
	if len(second.EntryIDs) != 3 {
		t.Errorf("len(EntryIDs) = %d, want 3 deduplicated", len(second.EntryIDs))
	}
	if second.Severity != audit.RiskHigh {
		t.Errorf("Severity = %s, want escalated to %s", second.Severity, audit.RiskHigh)
	}

	alerts, err := store.FindAlerts(ctx, audit.AlertFilter{}, 0)
	if err != nil {
		t.Fatalf("FindAlerts() returned error: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("stored alerts = %d, want 1", len(alerts))
	}
}

func TestUpsert_NewAlertOutsideDedupWindow(t *testing.T) {
	store := audit.NewInMemoryStore()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	g := NewAggregator(store, nil, Config{
		DedupWindow: time.Hour,
		Now:         func() time.Time { return now },
	})
	ctx := context.Background()

	first, err := g.Upsert(ctx, finding(audit.RiskMedium, "e1"))
	if err != nil {
		t.Fatalf("first Upsert() returned error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	second, err := g.Upsert(ctx, finding(audit.RiskMedium, "e2"))
	if err != nil {
		t.Fatalf("second Upsert() returned error: %v", err)
	}

	if second.ID == first.ID {
		t.Error("second Upsert merged into a stale alert, want a new one")
	}
}

func TestUpsert_DistinctActorsNotMerged(t *testing.T) {
	store := audit.NewInMemoryStore()
	g := NewAggregator(store, nil, Config{DedupWindow: time.Hour})
	ctx := context.Background()

	// Same type, same window, different actor IDs, and no resolved
	// email for either. These must stay separate alerts.
	bulk := func(actorID, entryID string) audit.Finding {
		return audit.Finding{
			Type:        audit.AlertBulkDownload,
			Severity:    audit.RiskHigh,
			Title:       "Bulk download detected",
			Description: "10 downloads",
			ActorID:     actorID,
			EntryIDs:    []string{entryID},
		}
	}

	first, err := g.Upsert(ctx, bulk("actor-a", "e1"))
	if err != nil {
		t.Fatalf("first Upsert() returned error: %v", err)
	}
	second, err := g.Upsert(ctx, bulk("actor-b", "e2"))
	if err != nil {
		t.Fatalf("second Upsert() returned error: %v", err)
	}

	if second.ID == first.ID {
		t.Fatalf("findings for distinct actors merged into alert %s", first.ID)
	}
	if second.ActorID != "actor-b" || len(second.EntryIDs) != 1 {
		t.Errorf("second alert = (%s, %v), want actor-b with its own entry", second.ActorID, second.EntryIDs)
	}

	// Same actor again still merges.
	third, err := g.Upsert(ctx, bulk("actor-a", "e3"))
	if err != nil {
		t.Fatalf("third Upsert() returned error: %v", err)
	}
	if third.ID != first.ID {
		t.Errorf("repeat finding for actor-a created alert %s, want merge into %s", third.ID, first.ID)
	}
}

func TestUpsert_ResolvedAlertNotMerged(t *testing.T) {
	store := audit.NewInMemoryStore()
	g := NewAggregator(store, nil, Config{})
	ctx := context.Background()

	first, err := g.Upsert(ctx, finding(audit.RiskMedium, "e1"))
	if err != nil {
		t.Fatalf("Upsert() returned error: %v", err)
	}
	first.State = audit.AlertResolved
	if err := store.UpdateAlert(ctx, first); err != nil {
		t.Fatalf("UpdateAlert() returned error: %v", err)
	}

	second, err := g.Upsert(ctx, finding(audit.RiskMedium, "e2"))
	if err != nil {
		t.Fatalf("Upsert() returned error: %v", err)
	}
	if second.ID == first.ID {
		t.Error("finding merged into a RESOLVED alert, want a new alert")
	}
}

func TestUpsert_CapsEntryIDs(t *testing.T) {
	store := audit.NewInMemoryStore()
	g := NewAggregator(store, nil, Config{MaxSourceEntries: 3})

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = fmt.Sprintf("e%d", i)
	}
	created, err := g.Upsert(context.Background(), finding(audit.RiskMedium, ids...))
	if err != nil {
		t.Fatalf("Upsert() returned error: %v", err)
	}
	if len(created.EntryIDs) != 3 {
		t.Fatalf("len(EntryIDs) = %d, want capped at 3", len(created.EntryIDs))
	}
	// Newest (tail) IDs are kept.
	if created.EntryIDs[0] != "e2" {
		t.Errorf("EntryIDs[0] = %s, want e2 after dropping oldest", created.EntryIDs[0])
	}
}

func TestUpsert_NotifiesAtMinSeverity(t *testing.T) {
	store := audit.NewInMemoryStore()
	notifier := newRecordingNotifier()
	g := NewAggregator(store, notifier, Config{NotifyMinSeverity: audit.RiskHigh})

	created, err := g.Upsert(context.Background(), finding(audit.RiskHigh, "e1"))
	if err != nil {
		t.Fatalf("Upsert() returned error: %v", err)
	}
	if !created.Notified || created.NotifiedAt == nil {
		t.Errorf("Notified = (%v, %v), want marked before persist", created.Notified, created.NotifiedAt)
	}

	notified := notifier.wait(t)
	if notified.ID != created.ID {
		t.Errorf("notified alert = %s, want %s", notified.ID, created.ID)
	}
}

func TestUpsert_NotifyReportsJob(t *testing.T) {
	store := audit.NewInMemoryStore()
	notifier := newRecordingNotifier()
	reporter := newRecordingReporter()
	g := NewAggregator(store, notifier, Config{
		NotifyMinSeverity: audit.RiskHigh,
		Jobs:              reporter,
	})

	if _, err := g.Upsert(context.Background(), finding(audit.RiskHigh, "e1")); err != nil {
		t.Fatalf("Upsert() returned error: %v", err)
	}

	got := reporter.wait(t, jobs.JobTypeAlertNotify)
	if len(got) != 1 || got[0] != jobs.StatusSuccess {
		t.Errorf("notify job statuses = %v, want one %s", got, jobs.StatusSuccess)
	}
}

func TestUpsert_SkipsNotifyBelowMinSeverity(t *testing.T) {
	store := audit.NewInMemoryStore()
	notifier := newRecordingNotifier()
	g := NewAggregator(store, notifier, Config{NotifyMinSeverity: audit.RiskHigh})

	created, err := g.Upsert(context.Background(), finding(audit.RiskMedium, "e1"))
	if err != nil {
		t.Fatalf("Upsert() returned error: %v", err)
	}
	if created.Notified {
		t.Error("Notified = true, want false below the severity floor")
	}

	select {
	case <-notifier.done:
		t.Error("notification sent for a below-threshold alert")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMergeEntryIDs(t *testing.T) {
	got := mergeEntryIDs([]string{"a", "b"}, []string{"b", "c", "d"}, 3)
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
