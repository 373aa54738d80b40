package gallery

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store *fakeStorage, table *fakeTable, userID string, n int) []*Image {
	t.Helper()
	imgs := make([]*Image, n)
	for i := range n {
		path := fmt.Sprintf("%s/%d.png", userID, i)
		store.put(path, time.Now())
		img, err := table.Insert(context.Background(), userID, path)
		require.NoError(t, err)
		imgs[i] = img
	}
	return imgs
}

func TestLister_NewestFirst(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	imgs := seed(t, store, table, testUser, 3)
	seed(t, store, table, "someone-else", 2)

	l := NewLister(store, table, time.Hour, 2, discardLogger())
	entries, err := l.List(context.Background(), testUser)
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, imgs[2].ID, entries[0].ID)
	assert.Equal(t, imgs[1].ID, entries[1].ID)
	assert.Equal(t, imgs[0].ID, entries[2].ID)
	for _, e := range entries {
		assert.True(t, e.Available)
		assert.Contains(t, e.SignedURL, "ttl=1h0m0s")
	}
}

func TestLister_EmptyGallery(t *testing.T) {
	t.Parallel()

	l := NewLister(newFakeStorage(), newFakeTable(), time.Hour, 2, discardLogger())
	entries, err := l.List(context.Background(), testUser)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestLister_OneSigningFailureKeepsOthers(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	imgs := seed(t, store, table, testUser, 5)
	broken := imgs[2].URL
	store.SignedURLFn = func(key string) (string, error) {
		if key == broken {
			return "", errPlatform
		}
		return "https://signed.example/" + key, nil
	}

	l := NewLister(store, table, time.Hour, 3, discardLogger())
	entries, err := l.List(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	available := 0
	for _, e := range entries {
		if e.URL == broken {
			assert.False(t, e.Available)
			assert.Empty(t, e.SignedURL)
			continue
		}
		assert.True(t, e.Available)
		available++
	}
	assert.Equal(t, 4, available)
}

func TestLister_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	seed(t, store, table, testUser, 20)

	var inFlight, peak atomic.Int32
	store.SignedURLFn = func(key string) (string, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return "https://signed.example/" + key, nil
	}

	l := NewLister(store, table, time.Hour, 4, discardLogger())
	_, err := l.List(context.Background(), testUser)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestLister_QueryFailure(t *testing.T) {
	t.Parallel()

	table := newFakeTable()
	table.ListErr = errPlatform
	l := NewLister(newFakeStorage(), table, time.Hour, 2, discardLogger())

	_, err := l.List(context.Background(), testUser)
	assert.ErrorIs(t, err, errPlatform)
}

var confirmAll = ConfirmFunc(func(context.Context, *Image) bool { return true })

func TestLister_DeleteRemovesObjectAndRow(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	imgs := seed(t, store, table, testUser, 2)
	l := NewLister(store, table, time.Hour, 2, discardLogger())

	require.NoError(t, l.Delete(context.Background(), testUser, imgs[0].ID, confirmAll))

	assert.False(t, store.has(imgs[0].URL))
	entries, err := l.List(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, imgs[1].ID, entries[0].ID)
}

func TestLister_DeleteMissingObjectStillDeletesRow(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	img, err := table.Insert(context.Background(), testUser, testUser+"/never-stored.png")
	require.NoError(t, err)
	l := NewLister(store, table, time.Hour, 2, discardLogger())

	require.NoError(t, l.Delete(context.Background(), testUser, img.ID, confirmAll))
	assert.Zero(t, table.count())
}

func TestLister_DeleteStorageErrorStillDeletesRow(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	imgs := seed(t, store, table, testUser, 1)
	store.RemoveFn = func([]string) error { return errPlatform }
	l := NewLister(store, table, time.Hour, 2, discardLogger())

	require.NoError(t, l.Delete(context.Background(), testUser, imgs[0].ID, confirmAll))
	assert.Zero(t, table.count())
}

func TestLister_DeleteNotConfirmed(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	imgs := seed(t, store, table, testUser, 1)
	l := NewLister(store, table, time.Hour, 2, discardLogger())

	decline := ConfirmFunc(func(context.Context, *Image) bool { return false })
	err := l.Delete(context.Background(), testUser, imgs[0].ID, decline)
	assert.ErrorIs(t, err, ErrNotConfirmed)

	err = l.Delete(context.Background(), testUser, imgs[0].ID, nil)
	assert.ErrorIs(t, err, ErrNotConfirmed)

	assert.True(t, store.has(imgs[0].URL))
	assert.Equal(t, 1, table.count())
}

func TestLister_DeleteOtherUsersImage(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	imgs := seed(t, store, table, "someone-else", 1)
	l := NewLister(store, table, time.Hour, 2, discardLogger())

	err := l.Delete(context.Background(), testUser, imgs[0].ID, confirmAll)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, store.has(imgs[0].URL))
}

func TestLister_DeleteRowFailure(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	imgs := seed(t, store, table, testUser, 1)
	table.DeleteErr = errPlatform
	l := NewLister(store, table, time.Hour, 2, discardLogger())

	err := l.Delete(context.Background(), testUser, imgs[0].ID, confirmAll)
	assert.ErrorIs(t, err, errPlatform)
}

func TestLister_Get(t *testing.T) {
	t.Parallel()

	store, table := newFakeStorage(), newFakeTable()
	imgs := seed(t, store, table, testUser, 1)
	l := NewLister(store, table, time.Hour, 2, discardLogger())

	entry, err := l.Get(context.Background(), testUser, imgs[0].ID)
	require.NoError(t, err)
	assert.True(t, entry.Available)
	assert.True(t, strings.HasPrefix(entry.SignedURL, "https://signed.example/"))

	_, err = l.Get(context.Background(), "someone-else", imgs[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
