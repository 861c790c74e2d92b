package quota

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepStore is the slice of the shared store the retention job needs.
type SweepStore interface {
	// ScanKeys returns all keys matching the glob pattern.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error
}

// RetentionJob deletes usage counters older than the retention period.
//
// Counters already carry the retention TTL, so the sweep is a backstop
// for keys written before a retention change or by older releases. It
// runs on a cron schedule during the tenant's night.
type RetentionJob struct {
	store     SweepStore
	retention time.Duration
	schedule  string
	clock     Clock
	cron      *cron.Cron
}

// NewRetentionJob creates a retention job. Zero retention defaults to
// 90 days; an empty schedule defaults to 02:30 UTC daily.
func NewRetentionJob(store SweepStore, retention time.Duration, schedule string, clock Clock) *RetentionJob {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if schedule == "" {
		schedule = "30 2 * * *"
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &RetentionJob{
		store:     store,
		retention: retention,
		schedule:  schedule,
		clock:     clock,
	}
}

// Start schedules the sweep. The returned error reports an invalid
// cron expression.
func (j *RetentionJob) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(ctx); err != nil {
			slog.Error("usage retention sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule retention sweep %q: %w", j.schedule, err)
	}
	c.Start()
	j.cron = c

	slog.Info("usage retention sweep scheduled",
		slog.String("schedule", j.schedule),
		slog.Duration("retention", j.retention))
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish.
func (j *RetentionJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep deletes usage keys whose day component is older than the
// retention cutoff. It returns the number of keys deleted.
func (j *RetentionJob) Sweep(ctx context.Context) (int, error) {
	cutoff := j.clock.Now().UTC().Add(-j.retention).Format("2006-01-02")

	keys, err := j.store.ScanKeys(ctx, "usage:*")
	if err != nil {
		return 0, fmt.Errorf("scan usage keys: %w", err)
	}

	var expired []string
	for _, key := range keys {
		// Key layout: usage:<kind>:<userID>:<YYYY-MM-DD>.
		idx := strings.LastIndex(key, ":")
		if idx < 0 || idx == len(key)-1 {
			continue
		}
		day := key[idx+1:]
		if len(day) == len("2006-01-02") && day < cutoff {
			expired = append(expired, key)
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}
	if err := j.store.Delete(ctx, expired...); err != nil {
		return 0, fmt.Errorf("delete expired usage keys: %w", err)
	}

	slog.Info("usage retention sweep completed",
		slog.Int("deleted", len(expired)),
		slog.String("cutoff_day", cutoff))
	return len(expired), nil
}
