package history

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"
	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/metrics"
)

// DefaultPruneSchedule runs retention once a day.
const DefaultPruneSchedule = "@daily"

// Pruner deletes messages older than the retention window on a cron schedule.
type Pruner struct {
	store     *Store
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// NewPruner validates schedule and prepares a pruner. Call Start to run it.
func NewPruner(store *Store, schedule string, retentionDays int) (*Pruner, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("history: retention must be at least one day, got %d", retentionDays)
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	p := &Pruner{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		cron:      cron.New(),
		now:       time.Now,
	}
	if _, err := p.cron.AddFunc(schedule, func() {
		if _, err := p.RunOnce(context.Background()); err != nil {
			L_error("history: scheduled prune failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("history: invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start begins running the schedule in the background.
func (p *Pruner) Start() {
	p.cron.Start()
	L_info("history: pruner started", "retention", p.retention)
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

// RunOnce prunes immediately.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PruneBefore(ctx, cutoff)
	MetricDuration("history", "prune", time.Since(start))
	if err != nil {
		return 0, err
	}
	GetInstance().AddCounter("history", "pruned", n)
	if n > 0 {
		L_info("history: pruned old messages", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
