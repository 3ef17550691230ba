package retention

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/config"
	"mercator-hq/tether/pkg/telemetry/metrics"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain events.
	// 0 keeps events forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduled pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string
}

// FromConfig builds a retention configuration from the audit section.
func FromConfig(cfg config.AuditConfig) *Config {
	return &Config{
		RetentionDays: cfg.RetentionDays,
		PruneSchedule: cfg.PruneSchedule,
	}
}

// Pruner enforces the retention period on stored events.
type Pruner struct {
	storage audit.Storage
	config  *Config
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// NewPruner creates a pruner. collector may be nil.
func NewPruner(storage audit.Storage, cfg *Config, collector *metrics.Collector) *Pruner {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Pruner{
		storage: storage,
		config:  cfg,
		metrics: collector,
		logger:  slog.Default().With("component", "audit.retention"),
		now:     time.Now,
	}
}

// Prune deletes events older than the retention period and returns how many
// were deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.RetentionDays <= 0 {
		p.logger.Debug("retention disabled, nothing pruned")
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	deleted, err := p.storage.Delete(ctx, &audit.Query{Until: &cutoff})
	if err != nil {
		return 0, audit.NewRetentionError(p.config.RetentionDays, err)
	}

	p.metrics.RecordAuditPruned(deleted)

	if deleted > 0 {
		p.logger.Info("audit pruning completed",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
			"cutoff_time", cutoff,
		)
	}
	return deleted, nil
}
