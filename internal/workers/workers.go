package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler re-runs threshold evaluation for every user.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, int, error)
}

// StartReconcileWorker runs r every interval until ctx is cancelled. It returns
// immediately when interval is not positive.
func StartReconcileWorker(ctx context.Context, r Reconciler, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reconcileOnce(ctx, r, interval, logger)
			}
		}
	}()
}

func reconcileOnce(ctx context.Context, r Reconciler, interval time.Duration, logger *zap.Logger) {
	// a run never outlives the next tick
	ctx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	logger.Info("starting scheduled reconcile")
	start := time.Now()

	users, granted, err := r.ReconcileAll(ctx)
	if err != nil {
		logger.Error("scheduled reconcile failed", zap.Int("users", users), zap.Error(err))
		return
	}
	logger.Info("scheduled reconcile finished",
		zap.Int("users", users),
		zap.Int("granted", granted),
		zap.Duration("took", time.Since(start)),
	)
}
