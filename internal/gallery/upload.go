package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/pixelnest/gallery/internal/metrics"
	"github.com/pixelnest/gallery/internal/storage"
)

// MaxFileSize is the largest accepted upload in bytes (10 MiB).
const MaxFileSize = 10 << 20

// ValidationError is a local precondition failure detected before any
// storage or table call. Message is safe to show to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrNoFile          = &ValidationError{Message: "please choose a file to upload"}
	ErrUnauthenticated = &ValidationError{Message: "you must be signed in to upload"}
	ErrNotImage        = &ValidationError{Message: "please select an image file"}
	ErrTooLarge        = &ValidationError{Message: "file is too large (max 10MB)"}
)

// ErrUploadFailed wraps a storage write failure. No row is recorded.
var ErrUploadFailed = errors.New("upload failed")

// Notifier tells other views of a user's gallery that it changed.
type Notifier func(ctx context.Context, userID string)

// File is an upload candidate.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader validates a file, writes it to storage under the owner's
// prefix and records it in the images table.
type Uploader struct {
	store      storage.Storage
	table      Table
	logger     *slog.Logger
	onComplete Notifier
	newName    func() string
}

// NewUploader creates an Uploader. onComplete runs after a successful
// insert and may be nil.
func NewUploader(store storage.Storage, table Table, logger *slog.Logger, onComplete Notifier) *Uploader {
	return &Uploader{
		store:      store,
		table:      table,
		logger:     logger,
		onComplete: onComplete,
		newName:    uuid.NewString,
	}
}

// Validate checks the upload preconditions without touching the network.
func Validate(userID string, f *File) error {
	if f == nil || f.Body == nil || f.Name == "" {
		return ErrNoFile
	}
	if userID == "" {
		return ErrUnauthenticated
	}
	if !strings.HasPrefix(strings.ToLower(f.ContentType), "image/") {
		return ErrNotImage
	}
	if f.Size > MaxFileSize {
		return ErrTooLarge
	}
	return nil
}

// Upload stores f for userID and returns the inserted row.
//
// If the insert fails after the object was written the object is left in
// place and reported as a storage orphan.
func (u *Uploader) Upload(ctx context.Context, userID string, f *File) (*Image, error) {
	if err := Validate(userID, f); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	key := ObjectPath(userID, u.newName(), f.Name)

	if err := u.store.Upload(ctx, key, f.Body, f.Size, f.ContentType); err != nil {
		metrics.UploadsTotal.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	img, err := u.table.Insert(ctx, userID, key)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("insert_error").Inc()
		metrics.OrphansTotal.WithLabelValues(metrics.OrphanStorage).Inc()
		u.logger.Warn("image row insert failed, object left without row",
			slog.String("path", key),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	u.logger.Info("image uploaded", slog.String("id", img.ID), slog.String("path", key))

	if u.onComplete != nil {
		u.onComplete(ctx, userID)
	}
	return img, nil
}

// ObjectPath builds "{userID}/{name}.{ext}" where ext is the lower-cased text
// after the last dot of original. A name without a dot yields no extension.
func ObjectPath(userID, name, original string) string {
	if ext := Extension(original); ext != "" {
		name += "." + ext
	}
	return path.Join(userID, name)
}

// Extension returns the lower-cased text after the last dot of name.
func Extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	ext := name[i+1:]
	if strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return strings.ToLower(ext)
}
