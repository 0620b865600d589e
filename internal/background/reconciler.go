package background

import (
	"context"
	"log/slog"
	"time"
)

// ReconcileService is the part of the verification service the sweep drives
type ReconcileService interface {
	Reconcile(ctx context.Context) error
}

// Reconciler periodically materializes time-based lifecycle transitions
// (pending -> expired, pending -> locked) that no user action triggers.
// Read paths do not depend on its cadence; they derive the same
// classification independently, so the sweep is eventual-consistency
// cleanup rather than the source of truth.
type Reconciler struct {
	service  ReconcileService
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(service ReconcileService, logger *slog.Logger, interval time.Duration) *Reconciler {
	return &Reconciler{
		service:  service,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic reconciliation task
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately on startup
	r.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			r.runSweep(ctx)
		case <-r.stopCh:
			r.logger.Info("reconciler stopped")
			return
		case <-ctx.Done():
			r.logger.Info("reconciler context cancelled")
			return
		}
	}
}

// runSweep executes one reconciliation pass with a bounded deadline
func (r *Reconciler) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := r.service.Reconcile(sweepCtx); err != nil {
		r.logger.Error("reconciliation sweep failed", slog.Any("error", err))
	}
}

// Stop signals the reconciler to stop
func (r *Reconciler) Stop() {
	close(r.stopCh)
}
