package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pixelnest/gallery/internal/storage"
)

var errPlatform = errors.New("platform unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStorage is an in-memory storage.Storage with per-call overrides.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]storage.Object
	calls   int

	UploadFn    func(key string) error
	SignedURLFn func(key string) (string, error)
	RemoveFn    func(keys []string) error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]storage.Object)}
}

func (f *fakeStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	f.calls++
	fn := f.UploadFn
	f.mu.Unlock()
	if fn != nil {
		if err := fn(key); err != nil {
			return err
		}
	}
	n, err := io.Copy(io.Discard, reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = storage.Object{Key: key, Size: n, LastModified: time.Now()}
	return nil
}

func (f *fakeStorage) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	f.calls++
	fn := f.SignedURLFn
	_, ok := f.objects[key]
	f.mu.Unlock()
	if fn != nil {
		return fn(key)
	}
	if !ok {
		return "", storage.ErrObjectNotFound
	}
	return fmt.Sprintf("https://signed.example/%s?ttl=%s", key, ttl), nil
}

func (f *fakeStorage) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.RemoveFn != nil {
		if err := f.RemoveFn(keys); err != nil {
			return err
		}
	}
	var errs []error
	for _, k := range keys {
		if _, ok := f.objects[k]; !ok {
			errs = append(errs, storage.ErrObjectNotFound)
			continue
		}
		delete(f.objects, k)
	}
	return errors.Join(errs...)
}

func (f *fakeStorage) List(_ context.Context, prefix string) ([]storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []storage.Object
	for _, o := range f.objects {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeStorage) put(key string, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = storage.Object{Key: key, Size: 1, LastModified: modified}
}

func (f *fakeStorage) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeStorage) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeTable is an in-memory Table.
type fakeTable struct {
	mu    sync.Mutex
	rows  []Image
	seq   int
	calls int
	lists int
	clock time.Time

	InsertErr error
	ListErr   error
	DeleteErr error
}

func newFakeTable() *fakeTable {
	return &fakeTable{clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeTable) ListByUser(_ context.Context, userID string) ([]Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lists++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []Image
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeTable) GetByID(_ context.Context, userID, id string) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, r := range f.rows {
		if r.ID == id && r.UserID == userID {
			img := r
			return &img, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeTable) Insert(_ context.Context, userID, path string) (*Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.InsertErr != nil {
		return nil, f.InsertErr
	}
	f.seq++
	f.clock = f.clock.Add(time.Minute)
	img := Image{
		ID:        fmt.Sprintf("00000000-0000-4000-8000-%012d", f.seq),
		UserID:    userID,
		URL:       path,
		CreatedAt: f.clock,
	}
	f.rows = append(f.rows, img)
	return &img, nil
}

func (f *fakeTable) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for i, r := range f.rows {
		if r.ID == id && r.UserID == userID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeTable) ListPaths(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	paths := make([]string, len(f.rows))
	for i, r := range f.rows {
		paths[i] = r.URL
	}
	return paths, nil
}

func (f *fakeTable) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeTable) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeTable) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
