package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pixelnest/gallery/internal/response"
	"github.com/pixelnest/gallery/internal/session"
)

// multipartOverhead allows room for boundaries and part headers on top of MaxFileSize.
const multipartOverhead = 1 << 20

// keepAliveInterval spaces comment lines on idle watch streams.
const keepAliveInterval = 25 * time.Second

// Handler holds HTTP handlers for the gallery endpoints.
type Handler struct {
	uploader *Uploader
	lister   *Lister
	viewer   *Viewer
	events   Subscriber
	deleted  DeleteNotifier
	logger   *slog.Logger
}

// NewHandler creates a new gallery Handler. deleted may be nil.
func NewHandler(uploader *Uploader, lister *Lister, viewer *Viewer, events Subscriber, deleted DeleteNotifier, logger *slog.Logger) *Handler {
	return &Handler{
		uploader: uploader,
		lister:   lister,
		viewer:   viewer,
		events:   events,
		deleted:  deleted,
		logger:   logger,
	}
}

type deletedData struct {
	Deleted string `json:"deleted" example:"3f1c2a9e-8d7b-4c6a-9e5f-1a2b3c4d5e6f"`
}

// Upload godoc
//
//	@Summary		Upload image
//	@Description	Store an image (max 10MB) under the caller's folder and record it.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"Image file"
//	@Success		201		{object}	response.Envelope{data=Image}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/images [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			response.TooLarge(w, ErrTooLarge.Message)
		case errors.Is(err, http.ErrMissingFile):
			response.BadRequest(w, ErrNoFile.Message)
		default:
			response.BadRequest(w, "invalid multipart form")
		}
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	img, err := h.uploader.Upload(r.Context(), session.UserID(r.Context()), &File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.writeUploadError(w, err)
		return
	}

	response.Created(w, img)
}

func (h *Handler) writeUploadError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrTooLarge):
		response.TooLarge(w, ErrTooLarge.Message)
	case errors.As(err, &verr):
		response.BadRequest(w, verr.Message)
	case errors.Is(err, ErrUploadFailed):
		h.logger.Error("upload to storage failed", slog.String("error", err.Error()))
		response.BadGateway(w, "upload failed")
	default:
		h.logger.Error("record upload failed", slog.String("error", err.Error()))
		response.InternalError(w)
	}
}

// List godoc
//
//	@Summary		List images
//	@Description	Return the caller's images newest first, each with a signed display URL valid for one hour. Entries whose URL could not be signed have available=false.
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]Entry}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/images [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.lister.List(r.Context(), session.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list images failed", slog.String("error", err.Error()))
		response.InternalError(w)
		return
	}
	response.OK(w, entries)
}

// Get godoc
//
//	@Summary		Image detail
//	@Description	Resolve one image for the detail viewer.
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Image ID"
//	@Success		200	{object}	response.Envelope{data=Detail}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		409	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/images/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if uuid.Validate(id) != nil {
		response.NotFound(w, ErrNotFound.Error())
		return
	}

	entry, err := h.lister.Get(r.Context(), session.UserID(r.Context()), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(w, ErrNotFound.Error())
		return
	}
	if err != nil {
		h.logger.Error("get image failed", slog.String("error", err.Error()))
		response.InternalError(w)
		return
	}

	detail, err := h.viewer.Open(entry)
	if errors.Is(err, ErrUnavailable) {
		response.Conflict(w, ErrUnavailable.Error())
		return
	}
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, detail)
}

// Delete godoc
//
//	@Summary		Delete image
//	@Description	Remove the stored file (best effort) and its record. Requires confirm=true.
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string	true	"Image ID"
//	@Param			confirm	query		bool	true	"Must be true"
//	@Success		200		{object}	response.Envelope{data=deletedData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/images/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if uuid.Validate(id) != nil {
		response.NotFound(w, ErrNotFound.Error())
		return
	}
	userID := session.UserID(r.Context())

	confirm := ConfirmFunc(func(_ context.Context, _ *Image) bool {
		return r.URL.Query().Get("confirm") == "true"
	})

	err := h.lister.Delete(r.Context(), userID, id, confirm)
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, ErrNotFound.Error())
		return
	case errors.Is(err, ErrNotConfirmed):
		response.BadRequest(w, "deletion must be confirmed with confirm=true")
		return
	case err != nil:
		h.logger.Error("delete image failed", slog.String("error", err.Error()))
		response.InternalError(w)
		return
	}

	if h.deleted != nil {
		h.deleted(r.Context(), userID, id)
	}
	response.OK(w, deletedData{Deleted: id})
}

// Watch godoc
//
//	@Summary		Watch gallery
//	@Description	Server-sent events stream. Emits a "listing" event on connect and after every change to the caller's gallery, and "signed_out" before closing when the session ends. EventSource clients may pass the token as access_token.
//	@Tags			images
//	@Produce		text/event-stream
//	@Security		BearerAuth
//	@Success		200
//	@Failure		401	{object}	response.Envelope
//	@Router			/images/watch [get]
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	id := session.FromContext(r.Context())
	if id == nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	events, unsubscribe := h.events.Subscribe(id.UserID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	listing := NewListing(h.lister, id.UserID)
	results := make(chan Snapshot, 1)
	refresh := func() {
		go func() {
			snap, applied := listing.Refresh(ctx)
			if !applied {
				return
			}
			select {
			case results <- snap:
			case <-ctx.Done():
			}
		}()
	}
	refresh()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-results:
			// A newer fetch may have been applied since this one was queued.
			current := listing.Snapshot()
			if snap.Generation != current.Generation {
				continue
			}
			// Deletes applied after the fetch are already reflected in current.
			if err := writeEvent(w, "listing", current); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case session.EventRefresh:
				listing.Trigger()
				refresh()
				continue
			case session.EventDeleted:
				if !listing.Remove(ev.ImageID) {
					continue
				}
				if err := writeEvent(w, "listing", listing.Snapshot()); err != nil {
					return
				}
			case session.EventSignedOut:
				if ev.SessionID != "" && ev.SessionID != id.SessionID {
					continue
				}
				listing.SetUser("")
				_ = writeEvent(w, "signed_out", map[string]string{"reason": "session ended"})
				_ = rc.Flush()
				return
			default:
				continue
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
