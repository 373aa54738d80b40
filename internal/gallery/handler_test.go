package gallery

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelnest/gallery/internal/session"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testEnv struct {
	store  *fakeStorage
	table  *fakeTable
	hub    *session.Hub
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{store: newFakeStorage(), table: newFakeTable(), hub: session.NewHub()}
	logger := discardLogger()
	notify := RefreshNotifier(env.hub, logger)

	h := NewHandler(
		NewUploader(env.store, env.table, logger, notify),
		NewLister(env.store, env.table, time.Hour, 4, logger),
		NewViewer(time.UTC),
		env.hub,
		DeletedNotifier(env.hub, logger),
		logger,
	)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := &session.Identity{UserID: testUser, Email: "ada@example.com", SessionID: "s1"}
			next.ServeHTTP(w, r.WithContext(session.WithIdentity(r.Context(), id)))
		})
	})
	r.Post("/images", h.Upload)
	r.Get("/images", h.List)
	r.Get("/images/watch", h.Watch)
	r.Get("/images/{id}", h.Get)
	r.Delete("/images/{id}", h.Delete)
	env.router = r
	return env
}

func (e *testEnv) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func multipartRequest(t *testing.T, filename, contentType string, size int) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x89}, size))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandler_UploadListGetDelete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec, body := env.do(multipartRequest(t, "photo.png", "image/png", 2048))
	require.Equal(t, http.StatusCreated, rec.Code, body.Error)
	var img Image
	require.NoError(t, json.Unmarshal(body.Data, &img))
	assert.True(t, strings.HasPrefix(img.URL, testUser+"/"))
	assert.True(t, strings.HasSuffix(img.URL, ".png"))

	rec, body = env.do(httptest.NewRequest(http.MethodGet, "/images", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []Entry
	require.NoError(t, json.Unmarshal(body.Data, &entries))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Available)

	rec, body = env.do(httptest.NewRequest(http.MethodGet, "/images/"+img.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail Detail
	require.NoError(t, json.Unmarshal(body.Data, &detail))
	assert.Equal(t, img.ID, detail.ID)
	assert.NotEmpty(t, detail.DisplayURL)

	rec, _ = env.do(httptest.NewRequest(http.MethodDelete, "/images/"+img.ID, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "delete without confirm")
	assert.Equal(t, 1, env.table.count())

	rec, body = env.do(httptest.NewRequest(http.MethodDelete, "/images/"+img.ID+"?confirm=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"deleted":%q}`, img.ID), string(body.Data))

	rec, body = env.do(httptest.NewRequest(http.MethodGet, "/images", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(body.Data))
}

func TestHandler_UploadRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		status  int
		message string
	}{
		{
			name:    "not an image",
			req:     func(t *testing.T) *http.Request { return multipartRequest(t, "notes.txt", "text/plain", 10) },
			status:  http.StatusBadRequest,
			message: ErrNotImage.Message,
		},
		{
			name:    "too large",
			req:     func(t *testing.T) *http.Request { return multipartRequest(t, "big.png", "image/png", 15<<20) },
			status:  http.StatusRequestEntityTooLarge,
			message: ErrTooLarge.Message,
		},
		{
			name: "missing file field",
			req: func(t *testing.T) *http.Request {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				require.NoError(t, mw.WriteField("other", "x"))
				require.NoError(t, mw.Close())
				req := httptest.NewRequest(http.MethodPost, "/images", &body)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
			status:  http.StatusBadRequest,
			message: ErrNoFile.Message,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec, body := env.do(tt.req(t))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, body.Error)
			assert.Zero(t, env.store.callCount())
			assert.Zero(t, env.table.callCount())
		})
	}
}

func TestHandler_UploadStorageFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.store.UploadFn = func(string) error { return errPlatform }

	rec, body := env.do(multipartRequest(t, "photo.png", "image/png", 10))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upload failed", body.Error)
	assert.Zero(t, env.table.count())
}

func TestHandler_UploadInsertFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.table.InsertErr = errPlatform

	rec, _ := env.do(multipartRequest(t, "photo.png", "image/png", 10))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_GetNotFoundAndUnavailable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	rec, _ := env.do(httptest.NewRequest(http.MethodGet, "/images/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(httptest.NewRequest(http.MethodGet, "/images/00000000-0000-4000-8000-000000000099", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	img, err := env.table.Insert(context.Background(), testUser, testUser+"/gone.png")
	require.NoError(t, err)
	rec, body := env.do(httptest.NewRequest(http.MethodGet, "/images/"+img.ID, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "image unavailable", body.Error)
}

func TestHandler_ListFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.table.ListErr = errPlatform

	rec, body := env.do(httptest.NewRequest(http.MethodGet, "/images", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, body.Success)
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, sc *bufio.Scanner, out chan<- sseEvent) {
	t.Helper()
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.name != "":
			out <- ev
			ev = sseEvent{}
		}
	}
	close(out)
}

func nextEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return sseEvent{}
	}
}

func TestHandler_Watch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/images/watch", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan sseEvent, 8)
	go readEvents(t, bufio.NewScanner(resp.Body), events)

	ev := nextEvent(t, events)
	assert.Equal(t, "listing", ev.name)
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	assert.Empty(t, snap.Entries)

	rec, _ := env.do(multipartRequest(t, "photo.png", "image/png", 64))
	require.Equal(t, http.StatusCreated, rec.Code)

	ev = nextEvent(t, events)
	assert.Equal(t, "listing", ev.name)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, uint64(1), snap.Refreshes)

	env.hub.Deliver(session.Event{Kind: session.EventSignedOut, UserID: testUser, SessionID: "s1"})

	ev = nextEvent(t, events)
	assert.Equal(t, "signed_out", ev.name)

	select {
	case _, ok := <-events:
		assert.False(t, ok, "stream should end after sign-out")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close")
	}
}

func TestHandler_WatchDeleteDropsEntryWithoutRefetch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	keep, err := env.table.Insert(context.Background(), testUser, testUser+"/keep.png")
	require.NoError(t, err)
	gone, err := env.table.Insert(context.Background(), testUser, testUser+"/gone.png")
	require.NoError(t, err)
	env.store.put(keep.URL, time.Now())
	env.store.put(gone.URL, time.Now())

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/images/watch", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := make(chan sseEvent, 8)
	go readEvents(t, bufio.NewScanner(resp.Body), events)

	var snap Snapshot
	ev := nextEvent(t, events)
	require.Equal(t, "listing", ev.name)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	require.Len(t, snap.Entries, 2)
	listsBefore := env.table.listCount()

	rec, _ := env.do(httptest.NewRequest(http.MethodDelete, "/images/"+gone.ID+"?confirm=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ev = nextEvent(t, events)
	require.Equal(t, "listing", ev.name)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, keep.ID, snap.Entries[0].ID)
	assert.Equal(t, listsBefore, env.table.listCount(), "delete must not re-fetch the list")
	assert.False(t, env.store.has(gone.URL))
}
