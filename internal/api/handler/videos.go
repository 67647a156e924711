package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/vidhive/vidhive/internal/api/middleware"
	"github.com/vidhive/vidhive/internal/api/response"
	"github.com/vidhive/vidhive/internal/cache"
	"github.com/vidhive/vidhive/internal/feed"
	"github.com/vidhive/vidhive/internal/storage"
	"github.com/vidhive/vidhive/internal/store"
	"github.com/vidhive/vidhive/internal/upload"
	"github.com/vidhive/vidhive/pkg/models"
)

// multipartOverhead covers field boundaries and metadata beyond the media
// bytes when capping the request body.
const multipartOverhead = 1 << 20

const streamURLTTL = 5 * time.Minute

// Submitter is what the upload handler needs from the coordinator.
type Submitter interface {
	Submit(ctx context.Context, req upload.SubmitRequest) (*models.Video, error)
}

// NewUploadHandler returns the handler for POST /api/v1/videos. The request
// is multipart/form-data with fields title, description (optional), and file.
func NewUploadHandler(submitter Submitter, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge,
					"PAYLOAD_TOO_LARGE", "Upload exceeds the maximum allowed size", nil)
				return
			}
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "Expected multipart/form-data", nil)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file field is required", nil)
			return
		}
		defer file.Close()

		var description *string
		if d := strings.TrimSpace(r.FormValue("description")); d != "" {
			description = &d
		}

		video, err := submitter.Submit(r.Context(), upload.SubmitRequest{
			OwnerID:     userID,
			TenantID:    tenantID,
			Title:       r.FormValue("title"),
			Description: description,
			Filename:    header.Filename,
			ByteSize:    header.Size,
			MediaType:   header.Header.Get("Content-Type"),
			Body:        file,
		})
		if err != nil {
			writeSubmitError(w, err)
			return
		}

		response.Accepted(w, video)
	}
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upload.ErrTitleMissing):
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "title is required", nil)
	case errors.Is(err, upload.ErrEmptyUpload):
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "uploaded file is empty", nil)
	case errors.Is(err, upload.ErrTooLarge):
		response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err.Error(), nil)
	case errors.Is(err, upload.ErrUnsupportedType):
		response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error(), nil)
	case errors.Is(err, upload.ErrTransferFailed):
		response.Error(w, http.StatusBadGateway, "TRANSFER_FAILED", "Failed to store the uploaded media", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create the video record", nil)
	}
}

// NewListVideosHandler returns the handler for GET /api/v1/videos.
func NewListVideosHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		videos, err := st.ListVideos(r.Context(), tenantID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list videos", nil)
			return
		}

		response.Collection(w, videos, response.CollectionMeta{Total: len(videos)})
	}
}

// NewGetVideoHandler returns the handler for GET /api/v1/videos/{videoID}.
func NewGetVideoHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := fetchVideo(w, r, st)
		if !ok {
			return
		}
		response.JSON(w, video)
	}
}

// NewUpdateVideoHandler returns the handler for PATCH /api/v1/videos/{videoID}.
// Only the owner may edit, and only title and description are editable. An
// optional version field makes the edit a compare-and-set.
func NewUpdateVideoHandler(st store.Store, fd feed.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := fetchVideo(w, r, st)
		if !ok {
			return
		}
		userID, _ := mw.GetUserID(r)
		if video.OwnerID != userID {
			response.Error(w, http.StatusForbidden, "FORBIDDEN", "Only the owner may edit this video", nil)
			return
		}

		var req struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
			Version     *int64  `json:"version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		var opts []store.VideoUpdateOption
		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "title cannot be empty", nil)
				return
			}
			opts = append(opts, store.WithTitle(title))
		}
		if req.Description != nil {
			opts = append(opts, store.WithDescription(*req.Description))
		}
		if len(opts) == 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "nothing to update", nil)
			return
		}
		if req.Version != nil {
			opts = append(opts, store.WithExpectedVersion(*req.Version))
		}

		updated, err := st.UpdateVideo(r.Context(), video.ID, opts...)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Video not found", nil)
			case errors.Is(err, store.ErrConflict):
				response.Error(w, http.StatusConflict, "CONFLICT", "Video was modified concurrently", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update video", nil)
			}
			return
		}

		event := models.ChangeEvent{
			Kind:     models.EventUpdated,
			TenantID: updated.TenantID,
			VideoID:  updated.ID,
			Video:    updated,
		}
		_ = fd.Publish(r.Context(), event)

		response.JSON(w, updated)
	}
}

// NewDeleteVideoHandler returns the handler for DELETE /api/v1/videos/{videoID}.
// The stored object goes first, then the record; a storage failure leaves the
// record in place and is surfaced rather than swallowed.
func NewDeleteVideoHandler(st store.Store, gw storage.Gateway, fd feed.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}
		videoID, ok := parseVideoID(w, r)
		if !ok {
			return
		}

		video, err := st.GetVideo(r.Context(), videoID, tenantID)
		if errors.Is(err, store.ErrNotFound) {
			// Already gone; deleting a missing video is not an error.
			response.NoContent(w)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load video", nil)
			return
		}

		userID, _ := mw.GetUserID(r)
		if video.OwnerID != userID {
			response.Error(w, http.StatusForbidden, "FORBIDDEN", "Only the owner may delete this video", nil)
			return
		}

		if err := gw.Delete(r.Context(), video.StoragePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			response.Error(w, http.StatusBadGateway, "DELETE_INCOMPLETE",
				"Failed to remove stored media; the record was kept", nil)
			return
		}
		if video.ThumbnailPath != nil {
			// Best effort; an orphaned poster does not block the delete.
			_ = gw.Delete(r.Context(), *video.ThumbnailPath)
		}

		if err := st.DeleteVideo(r.Context(), videoID, tenantID); err != nil && !errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusInternalServerError, "DELETE_INCOMPLETE",
				"Stored media was removed but the record remains", nil)
			return
		}

		event := models.ChangeEvent{Kind: models.EventDeleted, TenantID: tenantID, VideoID: videoID}
		_ = fd.Publish(r.Context(), event)

		response.NoContent(w)
	}
}

// NewStreamHandler returns the handler for GET /api/v1/videos/{videoID}/stream.
// It redirects to the gateway URL; range handling happens there. URLs are
// cached briefly to keep repeat lookups off the store.
func NewStreamHandler(st store.Store, gw storage.Gateway, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := fetchVideo(w, r, st)
		if !ok {
			return
		}
		if video.Status != models.VideoStatusCompleted {
			response.Error(w, http.StatusConflict, "NOT_READY", "Video is not ready for playback", nil)
			return
		}

		key := cache.StreamURLKey(video.ID)
		if cached, found, err := c.Get(r.Context(), key); err == nil && found {
			http.Redirect(w, r, string(cached), http.StatusFound)
			return
		}

		url := gw.URL(video.StoragePath)
		_ = c.Set(r.Context(), key, []byte(url), streamURLTTL)
		http.Redirect(w, r, url, http.StatusFound)
	}
}

func parseVideoID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "videoID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "videoID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func fetchVideo(w http.ResponseWriter, r *http.Request, st store.Store) (*models.Video, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
		return nil, false
	}
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return nil, false
	}

	video, err := st.GetVideo(r.Context(), videoID, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Video not found", nil)
		} else {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load video", nil)
		}
		return nil, false
	}
	return video, true
}
