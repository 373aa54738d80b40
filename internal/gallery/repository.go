// Package gallery implements the upload, listing, deletion and detail
// flows over the images table and the object store.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an image does not exist or belongs to another user.
var ErrNotFound = errors.New("image not found")

// Image is one row of the images table. URL holds the storage path, not a resolvable URL.
type Image struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// Table is the row store the gallery flows depend on.
type Table interface {
	ListByUser(ctx context.Context, userID string) ([]Image, error)
	GetByID(ctx context.Context, userID, id string) (*Image, error)
	Insert(ctx context.Context, userID, path string) (*Image, error)
	Delete(ctx context.Context, userID, id string) error
	ListPaths(ctx context.Context) ([]string, error)
}

// Repository handles image database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListByUser returns the user's images, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Image, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, url, created_at
		 FROM images
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	images, err := pgx.CollectRows(rows, scanImage)
	if err != nil {
		return nil, fmt.Errorf("scan images: %w", err)
	}
	return images, nil
}

// GetByID fetches one image owned by userID.
func (r *Repository) GetByID(ctx context.Context, userID, id string) (*Image, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, url, created_at
		 FROM images
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}

	img, err := pgx.CollectExactlyOneRow(rows, scanImage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return &img, nil
}

// Insert records a stored object for userID and returns the new row.
func (r *Repository) Insert(ctx context.Context, userID, path string) (*Image, error) {
	img := &Image{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO images (user_id, url)
		 VALUES ($1, $2)
		 RETURNING id, user_id, url, created_at`,
		userID, path,
	).Scan(&img.ID, &img.UserID, &img.URL, &img.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert image: %w", err)
	}
	return img, nil
}

// Delete removes the row. A missing row yields ErrNotFound.
func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM images WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPaths returns the storage path of every row.
func (r *Repository) ListPaths(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT url FROM images`)
	if err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}

	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan paths: %w", err)
	}
	return paths, nil
}

func scanImage(row pgx.CollectableRow) (Image, error) {
	var img Image
	err := row.Scan(&img.ID, &img.UserID, &img.URL, &img.CreatedAt)
	return img, err
}
