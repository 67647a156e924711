package models

import "github.com/google/uuid"

const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// ChangeEvent is one logical mutation of a video record, broadcast to all
// subscribers of the owning tenant. Delivery is at-least-once and carries
// no ordering guarantee; consumers reconcile on Video.Version. Deleted
// events carry only the id of the removed record.
type ChangeEvent struct {
	Kind     string    `json:"kind"`
	TenantID uuid.UUID `json:"tenant_id"`
	VideoID  uuid.UUID `json:"video_id"`
	Video    *Video    `json:"video,omitempty"`
}
