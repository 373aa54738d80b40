package gallery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pixelnest/gallery/internal/metrics"
	"github.com/pixelnest/gallery/internal/storage"
)

// ErrNotConfirmed is returned when the confirmer declines a deletion.
var ErrNotConfirmed = errors.New("deletion not confirmed")

// Entry is a listed image with its display URL. Available is false when
// the URL could not be resolved for this fetch.
type Entry struct {
	Image
	SignedURL string `json:"signedUrl,omitempty"`
	Available bool   `json:"available"`
}

// Confirmer approves a destructive action before it runs.
type Confirmer interface {
	Confirm(ctx context.Context, img *Image) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, img *Image) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, img *Image) bool { return f(ctx, img) }

// Lister reads a user's gallery and resolves display URLs.
type Lister struct {
	store       storage.Storage
	table       Table
	ttl         time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewLister creates a Lister that signs URLs for ttl with at most
// concurrency requests in flight.
func NewLister(store storage.Storage, table Table, ttl time.Duration, concurrency int, logger *slog.Logger) *Lister {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Lister{store: store, table: table, ttl: ttl, concurrency: concurrency, logger: logger}
}

// List returns userID's images newest first. A row whose URL cannot be
// signed is kept with Available set to false; one failure does not stop
// the others.
func (l *Lister) List(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := l.table.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(rows))
	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i := range rows {
		g.Go(func() error {
			entries[i] = l.resolve(ctx, rows[i])
			return nil
		})
	}
	_ = g.Wait()

	return entries, nil
}

// Get returns one resolved entry owned by userID.
func (l *Lister) Get(ctx context.Context, userID, id string) (Entry, error) {
	img, err := l.table.GetByID(ctx, userID, id)
	if err != nil {
		return Entry{}, err
	}
	return l.resolve(ctx, *img), nil
}

func (l *Lister) resolve(ctx context.Context, img Image) Entry {
	url, err := l.store.SignedURL(ctx, img.URL, l.ttl)
	if err != nil {
		metrics.SignedURLFailuresTotal.Inc()
		l.logger.Warn("signed url unavailable",
			slog.String("id", img.ID),
			slog.String("path", img.URL),
			slog.String("error", err.Error()),
		)
		return Entry{Image: img}
	}
	return Entry{Image: img, SignedURL: url, Available: true}
}

// Delete removes image id owned by userID after confirm approves it.
// The stored object is removed first on a best-effort basis; a failure
// there is logged and the row is deleted anyway.
func (l *Lister) Delete(ctx context.Context, userID, id string, confirm Confirmer) error {
	img, err := l.table.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}

	if confirm == nil || !confirm.Confirm(ctx, img) {
		return ErrNotConfirmed
	}

	if err := l.store.Remove(ctx, img.URL); err != nil {
		metrics.StorageRemoveFailuresTotal.Inc()
		l.logger.Warn("remove stored object failed",
			slog.String("id", img.ID),
			slog.String("path", img.URL),
			slog.String("error", err.Error()),
		)
	}

	if err := l.table.Delete(ctx, userID, img.ID); err != nil {
		return err
	}

	metrics.DeletesTotal.Inc()
	l.logger.Info("image deleted", slog.String("id", img.ID))
	return nil
}
