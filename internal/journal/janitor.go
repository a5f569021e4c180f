package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// Janitor periodically prunes journal entries older than the retention window.
type Janitor struct {
	scheduler gocron.Scheduler
	journal   Journal
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJanitor creates a janitor; call Start to begin pruning every interval.
func NewJanitor(j Journal, retention, interval time.Duration, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	jn := &Janitor{
		scheduler: s,
		journal:   j,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(jn.sweep),
		gocron.WithName("journal-prune"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create prune job: %w", err)
	}
	return jn, nil
}

// Start begins the scheduler.
func (jn *Janitor) Start() {
	jn.logger.Info("Starting journal janitor", slog.Duration("retention", jn.retention))
	jn.scheduler.Start()
}

// Stop shuts the scheduler down and waits for a running sweep.
func (jn *Janitor) Stop() error {
	return jn.scheduler.Shutdown()
}

// PruneNow runs one sweep synchronously.
func (jn *Janitor) PruneNow(ctx context.Context) (int64, error) {
	return jn.journal.Prune(ctx, jn.now().Add(-jn.retention))
}

func (jn *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := jn.PruneNow(ctx)
	if err != nil {
		jn.logger.Error("Journal prune failed", logfields.Error(err))
		return
	}
	if n > 0 {
		jn.logger.Info("Pruned journal entries", slog.Int64("removed", n))
	}
}
