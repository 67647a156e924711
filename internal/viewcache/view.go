// Package viewcache maintains a per-session, tenant-scoped view of video
// records, kept current by merging a baseline fetch with live change-feed
// events. The merge is idempotent and order-insensitive: events may arrive
// duplicated or out of order, and the view reconciles on record version,
// never on arrival order.
package viewcache

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vidhive/vidhive/pkg/models"
)

// maxTombstones bounds the set of remembered deletions. Old tombstones are
// evicted FIFO; by then any straggling create event for them is long gone.
const maxTombstones = 1024

// View is an in-memory, duplicate-free collection of video snapshots,
// ordered by recency. Safe for concurrent use.
type View struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]models.Video
	tombstones  map[uuid.UUID]struct{}
	tombOrder   []uuid.UUID
	speculative map[string]uuid.UUID // correlation id -> locally shown video id
}

func New() *View {
	return &View{
		entries:     make(map[uuid.UUID]models.Video),
		tombstones:  make(map[uuid.UUID]struct{}),
		speculative: make(map[string]uuid.UUID),
	}
}

// SetBaseline replaces the view contents with the authoritative list fetched
// at subscribe time. Tombstones are kept: a deletion observed live outranks
// a baseline fetched just before it.
func (v *View) SetBaseline(videos []models.Video) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.entries = make(map[uuid.UUID]models.Video, len(videos))
	for _, video := range videos {
		if _, dead := v.tombstones[video.ID]; dead {
			continue
		}
		v.entries[video.ID] = video
	}
}

// Apply merges one change-feed event into the view.
//
// created: insert if absent; a duplicate delivery degrades to updated.
// updated: last-writer-wins by version. Replace only if the incoming
// snapshot's version is >= the cached one; if absent, treat as created.
// deleted: remove if present and remember the id so a late-arriving create
// for an already-deleted record cannot resurrect it.
func (v *View) Apply(event models.ChangeEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch event.Kind {
	case models.EventCreated, models.EventUpdated:
		if event.Video == nil {
			return
		}
		if _, dead := v.tombstones[event.VideoID]; dead {
			return
		}
		if cached, ok := v.entries[event.VideoID]; ok && event.Video.Version < cached.Version {
			return
		}
		v.entries[event.VideoID] = *event.Video

	case models.EventDeleted:
		delete(v.entries, event.VideoID)
		v.addTombstone(event.VideoID)
	}
}

func (v *View) addTombstone(id uuid.UUID) {
	if _, ok := v.tombstones[id]; ok {
		return
	}
	v.tombstones[id] = struct{}{}
	v.tombOrder = append(v.tombOrder, id)
	if len(v.tombOrder) > maxTombstones {
		evict := v.tombOrder[0]
		v.tombOrder = v.tombOrder[1:]
		delete(v.tombstones, evict)
	}
}

// Speculate shows a locally created video before the server confirms it.
// The correlation id ties the placeholder to its eventual Confirm call.
func (v *View) Speculate(correlationID string, video models.Video) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, dead := v.tombstones[video.ID]; dead {
		return
	}
	v.speculative[correlationID] = video.ID
	v.entries[video.ID] = video
}

// Confirm replaces the speculative entry for correlationID with the
// confirmed server record. A created event arriving afterwards for the same
// id is absorbed by Apply's duplicate handling, so the record is never shown
// twice.
func (v *View) Confirm(correlationID string, video models.Video) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if localID, ok := v.speculative[correlationID]; ok {
		delete(v.speculative, correlationID)
		if localID != video.ID {
			delete(v.entries, localID)
		}
	}
	if _, dead := v.tombstones[video.ID]; dead {
		return
	}
	if cached, ok := v.entries[video.ID]; ok && video.Version < cached.Version {
		return
	}
	v.entries[video.ID] = video
}

// Abandon drops the speculative entry for a submission that failed.
func (v *View) Abandon(correlationID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if localID, ok := v.speculative[correlationID]; ok {
		delete(v.speculative, correlationID)
		delete(v.entries, localID)
	}
}

// Snapshot returns the current view ordered by recency (created_at
// descending, id as tie-break).
func (v *View) Snapshot() []models.Video {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]models.Video, 0, len(v.entries))
	for _, video := range v.entries {
		out = append(out, video)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Get returns the cached snapshot for id, if present.
func (v *View) Get(id uuid.UUID) (models.Video, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	video, ok := v.entries[id]
	return video, ok
}

// Len returns the number of cached records.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// Run pumps a subscription into the view until the channel closes or the
// context is cancelled. Call with the baseline already set.
func (v *View) Run(ctx context.Context, events <-chan models.ChangeEvent) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			v.Apply(event)
		case <-ctx.Done():
			return
		}
	}
}
