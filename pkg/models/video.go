package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	VideoStatusUploading  = "uploading"
	VideoStatusProcessing = "processing"
	VideoStatusCompleted  = "completed"
	VideoStatusFailed     = "failed"
)

const (
	ClassificationPending = "pending"
	ClassificationSafe    = "safe"
	ClassificationFlagged = "flagged"
)

// Video is one uploaded media object and its processing record.
// StoragePath and the upload-time fields are immutable after creation;
// the stage runner owns status, progress and classification from the
// moment the upload is confirmed. Version increases with every durable
// write and is the ordering authority for change-feed consumers.
type Video struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	OwnerID        uuid.UUID  `db:"owner_id"        json:"owner_id"`
	TenantID       uuid.UUID  `db:"tenant_id"       json:"tenant_id"`
	Title          string     `db:"title"           json:"title"`
	Description    *string    `db:"description"     json:"description,omitempty"`
	StoragePath    string     `db:"storage_path"    json:"storage_path"`
	ByteSize       int64      `db:"byte_size"       json:"byte_size"`
	MediaType      string     `db:"media_type"      json:"media_type"`
	DurationSecs   *float64   `db:"duration_secs"   json:"duration_secs,omitempty"`
	ThumbnailPath  *string    `db:"thumbnail_path"  json:"thumbnail_path,omitempty"`
	Status         string     `db:"status"          json:"status"`
	Progress       int        `db:"progress"        json:"progress"`
	Classification string     `db:"classification"  json:"classification"`
	ErrorMessage   *string    `db:"error_message"   json:"error_message,omitempty"`
	Version        int64      `db:"version"         json:"version"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// Terminal reports whether the video has reached a final status.
func (v *Video) Terminal() bool {
	return v.Status == VideoStatusCompleted || v.Status == VideoStatusFailed
}
