// Package scheduler runs background maintenance jobs
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/Kiriban/repository"
	"github.com/amirphl/Kiriban/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

var orphanedGuardsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kiriban_issuance_guards_orphaned_total",
	Help: "Pending issuance guards marked orphaned by the reconciler",
})

// IssuanceReconciler marks pending issuance guards that outlived the issuance
// timeout as orphaned. Orphaned keys are never issued again automatically.
type IssuanceReconciler struct {
	repo        repository.IssuanceRecordRepository
	schedule    string
	orphanAfter time.Duration
	logger      *log.Logger
}

func NewIssuanceReconciler(repo repository.IssuanceRecordRepository, schedule string, orphanAfter time.Duration, logger *log.Logger) *IssuanceReconciler {
	if schedule == "" {
		schedule = "@every 5m"
	}
	if orphanAfter <= 0 {
		orphanAfter = utils.DefaultOrphanAfter
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IssuanceReconciler{
		repo:        repo,
		schedule:    schedule,
		orphanAfter: orphanAfter,
		logger:      logger,
	}
}

// Start registers the job and returns a func that stops the scheduler and
// waits for a running pass to finish.
func (s *IssuanceReconciler) Start(parent context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(parent)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid reconciler schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.logger.Printf("reconciler: started with schedule %q, orphan after %s", s.schedule, s.orphanAfter)

	return func() {
		cancel()
		<-c.Stop().Done()
	}, nil
}

// RunOnce performs a single reconciliation pass and returns the number of
// guards it marked orphaned.
func (s *IssuanceReconciler) RunOnce(ctx context.Context) int64 {
	if ctx.Err() != nil {
		return 0
	}
	cutoff := utils.UTCNowAdd(-s.orphanAfter)
	n, err := s.repo.MarkOrphaned(ctx, cutoff)
	if err != nil {
		s.logger.Printf("reconciler: mark orphaned failed: %v", err)
		return 0
	}
	if n > 0 {
		orphanedGuardsTotal.Add(float64(n))
		s.logger.Printf("reconciler: marked %d pending issuance guards older than %s as orphaned", n, cutoff.Format(time.RFC3339))
	}
	return n
}
