package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/metrics"
	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

// Scoper opens a database scope for work that runs outside a request.
type Scoper interface {
	WithoutTenant(ctx context.Context) (context.Context, func(), error)
}

// Reconciler compares the metadata store with the live warehouse.
type Reconciler interface {
	Reconcile(ctx context.Context) (*services.ReconcileReport, error)
}

// ReconcileJob reports descriptors whose table was dropped outside the engine
// and live tables the engine does not know about. Removing a stale descriptor
// is left to the administrative drop endpoint.
type ReconcileJob struct {
	scope   Scoper
	catalog Reconciler
	logger  *zap.Logger
}

// NewReconcileJob creates the catalog reconciliation job.
func NewReconcileJob(scope Scoper, catalog Reconciler, logger *zap.Logger) *ReconcileJob {
	return &ReconcileJob{scope: scope, catalog: catalog, logger: logger.Named("reconcile")}
}

// Run performs one reconciliation pass. Failures are logged; the next tick
// retries.
func (j *ReconcileJob) Run(ctx context.Context) {
	scoped, cleanup, err := j.scope.WithoutTenant(ctx)
	if err != nil {
		j.logger.Error("Failed to open database scope", zap.Error(err))
		return
	}
	defer cleanup()

	report, err := j.catalog.Reconcile(scoped)
	if err != nil {
		j.logger.Error("Catalog reconciliation failed", zap.Error(err))
		return
	}

	metrics.SetStaleDescriptors(len(report.Stale))
	if len(report.Stale) > 0 {
		j.logger.Warn("Descriptors without a live table", zap.Strings("tables", report.Stale))
	}
	if len(report.Untracked) > 0 {
		j.logger.Debug("Live tables without a descriptor", zap.Strings("tables", report.Untracked))
	}
}
