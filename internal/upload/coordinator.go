// Package upload accepts raw media from the HTTP layer and turns it into a
// processing job: validate, reserve a storage path, transfer the bytes,
// create the record, then hand off to the pipeline. Each step only runs if
// every earlier step succeeded, and a failed step unwinds what came before.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/vidhive/vidhive/internal/config"
	"github.com/vidhive/vidhive/internal/feed"
	"github.com/vidhive/vidhive/internal/storage"
	"github.com/vidhive/vidhive/internal/store"
	"github.com/vidhive/vidhive/pkg/models"
)

// sniffBytes is how much of the stream is buffered for content detection.
const sniffBytes = 3072

// Dispatcher receives the created record for background processing.
// Handoff is fire-and-forget; Submit never waits on the pipeline.
type Dispatcher interface {
	Dispatch(video *models.Video)
}

// SubmitRequest is one upload attempt. MediaType is the client's declared
// content type; the coordinator verifies it against the actual bytes.
type SubmitRequest struct {
	OwnerID     uuid.UUID
	TenantID    uuid.UUID
	Title       string
	Description *string
	Filename    string
	ByteSize    int64
	MediaType   string
	Body        io.Reader

	// OnProgress, when set, receives monotone percentages as the submission
	// advances. 100 is reported only after the record is durable.
	OnProgress func(percent int)
}

func (r SubmitRequest) progress(percent int) {
	if r.OnProgress != nil {
		r.OnProgress(percent)
	}
}

type Coordinator struct {
	store      store.Store
	gateway    storage.Gateway
	feed       feed.Feed
	dispatcher Dispatcher
	maxBytes   int64
	accepted   map[string]struct{}
}

func NewCoordinator(st store.Store, gw storage.Gateway, fd feed.Feed, d Dispatcher, cfg config.UploadConfig) *Coordinator {
	accepted := make(map[string]struct{}, len(cfg.AcceptedTypes))
	for _, t := range cfg.AcceptedTypes {
		accepted[strings.ToLower(t)] = struct{}{}
	}
	return &Coordinator{
		store:      st,
		gateway:    gw,
		feed:       fd,
		dispatcher: d,
		maxBytes:   cfg.MaxBytes,
		accepted:   accepted,
	}
}

// Submit runs the upload sequence and returns the created record with
// status uploading. The caller observes further progress on the change feed.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*models.Video, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrTitleMissing
	}
	if req.ByteSize <= 0 {
		return nil, ErrEmptyUpload
	}
	if req.ByteSize > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, req.ByteSize, c.maxBytes)
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(req.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: reading upload: %v", ErrTransferFailed, err)
	}
	head = head[:n]
	if len(head) == 0 {
		return nil, ErrEmptyUpload
	}

	mediaType, err := c.resolveMediaType(req.MediaType, head)
	if err != nil {
		return nil, err
	}
	req.progress(10)

	path := c.reservePath(req.OwnerID, req.Filename, mediaType)

	body := io.MultiReader(bytes.NewReader(head), req.Body)
	capped := &cappedReader{r: body, remaining: c.maxBytes}
	if err := c.gateway.Put(ctx, path, capped, req.ByteSize, mediaType); err != nil {
		c.cleanup(path)
		if capped.exceeded {
			return nil, fmt.Errorf("%w: stream exceeded limit of %d bytes", ErrTooLarge, c.maxBytes)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	req.progress(80)

	now := time.Now().UTC()
	video := &models.Video{
		ID:             uuid.New(),
		OwnerID:        req.OwnerID,
		TenantID:       req.TenantID,
		Title:          title,
		Description:    req.Description,
		StoragePath:    path,
		ByteSize:       req.ByteSize,
		MediaType:      mediaType,
		Status:         models.VideoStatusUploading,
		Progress:       0,
		Classification: models.ClassificationPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.store.InsertVideo(ctx, video); err != nil {
		// The stored bytes are an orphan without a record; remove them so
		// a retried upload does not leak objects.
		c.cleanup(path)
		return nil, fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}

	c.publishCreated(ctx, video)
	c.dispatcher.Dispatch(video)
	req.progress(100)

	return video, nil
}

// resolveMediaType checks the declared type against the accept list and the
// sniffed bytes. The sniffed type wins when it is specific; the declared
// type is trusted only when detection is inconclusive.
func (c *Coordinator) resolveMediaType(declared string, head []byte) (string, error) {
	declared = normalizeMediaType(declared)
	detected := mimetype.Detect(head)
	detectedType := normalizeMediaType(detected.String())

	if detectedType != "" && detectedType != "application/octet-stream" {
		if _, ok := c.accepted[detectedType]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedType, detectedType)
		}
		return detectedType, nil
	}
	if _, ok := c.accepted[declared]; !ok {
		if declared == "" {
			declared = "unknown"
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, declared)
	}
	return declared, nil
}

func normalizeMediaType(value string) string {
	parsed, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return parsed
}

// reservePath builds a collision-free object path under the owner's
// namespace before any bytes move.
func (c *Coordinator) reservePath(ownerID uuid.UUID, filename, mediaType string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("%s/%d-%s%s", ownerID, time.Now().UnixNano(), uuid.New(), ext)
}

func (c *Coordinator) cleanup(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.gateway.Delete(ctx, path); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		slog.Warn("removing orphaned upload", "path", path, "error", err)
	}
}

func (c *Coordinator) publishCreated(ctx context.Context, video *models.Video) {
	event := models.ChangeEvent{
		Kind:     models.EventCreated,
		TenantID: video.TenantID,
		VideoID:  video.ID,
		Video:    video,
	}
	if err := c.feed.Publish(ctx, event); err != nil {
		slog.Warn("publishing created event", "video_id", video.ID, "error", err)
	}
}

// cappedReader fails the copy once more than the allowed bytes flow
// through, so a client that understates its size cannot blow past the cap.
type cappedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		c.exceeded = true
		return 0, errors.New("size limit exceeded")
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		c.exceeded = true
		return n, errors.New("size limit exceeded")
	}
	return n, err
}
