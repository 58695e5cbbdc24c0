package maintenance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/issuetrail/internal/monitoring"
	"github.com/charlesng35/issuetrail/internal/services"
	"github.com/charlesng35/issuetrail/pkg/logger"
)

const (
	jobAuditCleanup = "audit_cleanup"
	jobCachePurge   = "cache_purge"

	defaultAuditRetentionDays = 90
	defaultAuditSpec          = "@daily"
	defaultCacheSpec          = "@hourly"
)

// ExpiredPurger removes cache entries whose TTL has passed. The database
// backed cache store implements it; Redis expires keys on its own.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner coordinates background maintenance: pruning stale audit logs and
// purging expired rows from the database cache store.
type Cleaner struct {
	audit     *services.AuditService
	cache     ExpiredPurger
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	auditSchedule string
	cacheSchedule string

	mu   sync.Mutex
	runs map[string]monitoring.JobRun
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cache expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache purging.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips the corresponding job.
func NewCleaner(audit *services.AuditService, purger ExpiredPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		audit:         audit,
		cache:         purger,
		now:           time.Now,
		retention:     defaultAuditRetentionDays,
		auditSchedule: defaultAuditSpec,
		cacheSchedule: defaultCacheSpec,
		log:           logger.WithModule("maintenance"),
		runs:          make(map[string]monitoring.JobRun),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if c.audit == nil && c.cache == nil {
		return nil
	}

	if c.audit != nil {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if err := c.cleanupAudit(context.Background()); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if err := c.purgeCache(context.Background()); err != nil {
				c.log.Warn("cache purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially and joins their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.audit != nil {
		errs = multierr.Append(errs, c.cleanupAudit(ctx))
	}
	if c.cache != nil {
		errs = multierr.Append(errs, c.purgeCache(ctx))
	}
	return errs
}

// Jobs reports the latest outcome of each job that has run, ordered by name.
func (c *Cleaner) Jobs() []monitoring.JobRun {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]monitoring.JobRun, 0, len(c.runs))
	for _, run := range c.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

func (c *Cleaner) record(job string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.runs[job]
	run.Job = job
	run.LastRunAt = c.now()
	run.TotalRuns++
	if err != nil {
		run.ConsecutiveFailures++
		run.LastError = err.Error()
	} else {
		run.ConsecutiveFailures = 0
		run.LastError = ""
	}
	c.runs[job] = run
}

func (c *Cleaner) cleanupAudit(ctx context.Context) error {
	removed, err := c.audit.CleanupOlderThan(ctx, c.retention)
	c.record(jobAuditCleanup, err)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Info("audit logs pruned", zap.Int64("removed", removed), zap.Int("retention_days", c.retention))
	}
	return nil
}

func (c *Cleaner) purgeCache(ctx context.Context) error {
	removed, err := c.cache.PurgeExpired(ctx, c.now())
	c.record(jobCachePurge, err)
	if err != nil {
		return err
	}
	if removed > 0 {
		c.log.Debug("expired cache entries purged", zap.Int64("removed", removed))
	}
	return nil
}
