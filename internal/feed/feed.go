// Package feed broadcasts video record mutations to subscribed consumers.
// Delivery is at-least-once, tenant-scoped, and carries no ordering
// guarantee; there is no replay, so a reconnecting consumer must re-fetch
// baseline state from the record store before applying live events.
package feed

import (
	"context"

	"github.com/google/uuid"
	"github.com/vidhive/vidhive/pkg/models"
)

// Feed is the change feed interface. Publish emits one logical event for a
// durable record write; Subscribe returns a live event channel for one tenant
// and a function that tears the subscription down and closes the channel.
type Feed interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
	Subscribe(ctx context.Context, tenantID uuid.UUID) (<-chan models.ChangeEvent, func(), error)
}
