package audit

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/vigil/internal/jobs"
)

// DefaultRetentionDays is how long full client IPs are kept before the
// retention job anonymizes them.
const DefaultRetentionDays = 90

// AnonymizeIP strips the host-identifying bits from an IP address.
// IPv4 loses its last octet (192.168.1.100 → 192.168.1.0); IPv6 loses
// its last 80 bits. Returns "" for unparseable input.
func AnonymizeIP(ipStr string) string {
	if ipStr == "" {
		return ""
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}

	if ip.To4() != nil {
		parts := strings.Split(ipStr, ".")
		if len(parts) != 4 {
			return ""
		}
		parts[3] = "0"
		return strings.Join(parts, ".")
	}

	ipBytes := []byte(ip.To16())
	if len(ipBytes) != 16 {
		return ""
	}
	for i := 6; i < 16; i++ {
		ipBytes[i] = 0
	}
	return net.IP(ipBytes).String()
}

// RetentionJobConfig configures the IP anonymization retention job.
type RetentionJobConfig struct {
	// Interval between anonymization sweeps.
	Interval time.Duration
	// RetentionDays is the age past which entry IPs are anonymized.
	RetentionDays int
	// Logger for job activity.
	Logger *slog.Logger
	// Reporter receives job duration and outcome metrics. Optional.
	Reporter jobs.Reporter
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultRetentionInterval is the default sweep interval.
const DefaultRetentionInterval = 24 * time.Hour

// RetentionJob periodically anonymizes the IP addresses of audit entries
// older than the retention cutoff. The audit log stays append-only for
// event content; only the IP column is rewritten, and only once per
// entry since an anonymized IP re-anonymizes to itself.
type RetentionJob struct {
	config RetentionJobConfig
	store  IPAnonymizer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRetentionJob creates a retention job over a store that supports IP
// anonymization.
func NewRetentionJob(config RetentionJobConfig, store IPAnonymizer) *RetentionJob {
	if config.Interval == 0 {
		config.Interval = DefaultRetentionInterval
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = DefaultRetentionDays
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RetentionJob{config: config, store: store}
}

// Start begins the periodic sweep. Returns immediately; the job runs in
// a background goroutine.
func (j *RetentionJob) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
}

// Stop signals the job to stop and waits for it to finish.
func (j *RetentionJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

func (j *RetentionJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.SweepNow(ctx)
		}
	}
}

// SweepNow runs one anonymization pass immediately.
func (j *RetentionJob) SweepNow(ctx context.Context) {
	cutoff := j.config.Now().UTC().AddDate(0, 0, -j.config.RetentionDays)

	var touched int
	err := jobs.Track(j.config.Reporter, jobs.JobTypeAnonymization, func() error {
		var err error
		touched, err = j.store.AnonymizeEntryIPsBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		j.config.Logger.Error("ip anonymization sweep failed", "error", err)
		return
	}
	if touched > 0 {
		j.config.Logger.Info("ip anonymization sweep completed",
			"entries", touched,
			"cutoff", cutoff)
	}
}
