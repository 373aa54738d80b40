package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixelnest/gallery/internal/metrics"
	"github.com/pixelnest/gallery/internal/storage"
)

// Report summarises one reconciliation sweep.
type Report struct {
	StorageOrphans []string
	RowOrphans     []string
	Removed        int
}

// Reconciler compares stored objects with image rows and reports the
// objects and rows that have lost their counterpart.
type Reconciler struct {
	store  storage.Storage
	table  Table
	minAge time.Duration
	remove bool
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler. Objects younger than minAge are
// skipped so in-flight uploads are not reported. When remove is true,
// storage orphans are deleted.
func NewReconciler(store storage.Storage, table Table, minAge time.Duration, remove bool, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, table: table, minAge: minAge, remove: remove, logger: logger, now: time.Now}
}

// Sweep runs one pass.
func (r *Reconciler) Sweep(ctx context.Context) (*Report, error) {
	objects, err := r.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	paths, err := r.table.ListPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}

	rows := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		rows[p] = struct{}{}
	}
	stored := make(map[string]struct{}, len(objects))

	report := &Report{}
	cutoff := r.now().Add(-r.minAge)
	for _, obj := range objects {
		stored[obj.Key] = struct{}{}
		if _, ok := rows[obj.Key]; ok {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		report.StorageOrphans = append(report.StorageOrphans, obj.Key)
	}
	for _, p := range paths {
		if _, ok := stored[p]; !ok {
			report.RowOrphans = append(report.RowOrphans, p)
		}
	}

	metrics.OrphansObserved.WithLabelValues(metrics.OrphanStorage).Set(float64(len(report.StorageOrphans)))
	metrics.OrphansObserved.WithLabelValues(metrics.OrphanRow).Set(float64(len(report.RowOrphans)))

	if r.remove {
		// One key per call so a partial failure still counts what was removed.
		for _, key := range report.StorageOrphans {
			if err := r.store.Remove(ctx, key); err != nil {
				r.logger.Warn("remove storage orphan failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				continue
			}
			report.Removed++
		}
		metrics.OrphansRemovedTotal.Add(float64(report.Removed))
	}

	r.logger.Info("reconcile sweep finished",
		slog.Int("objects", len(objects)),
		slog.Int("rows", len(paths)),
		slog.Int("storage_orphans", len(report.StorageOrphans)),
		slog.Int("row_orphans", len(report.RowOrphans)),
		slog.Int("removed", report.Removed),
	)
	return report, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconcile sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
