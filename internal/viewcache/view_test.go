package viewcache_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidhive/vidhive/internal/feed"
	"github.com/vidhive/vidhive/internal/viewcache"
	"github.com/vidhive/vidhive/pkg/models"
)

func video(id uuid.UUID, version int64, progress int) *models.Video {
	return &models.Video{
		ID:             id,
		TenantID:       uuid.Nil,
		Title:          "clip",
		Status:         models.VideoStatusProcessing,
		Progress:       progress,
		Classification: models.ClassificationPending,
		Version:        version,
		CreatedAt:      time.Unix(version, 0).UTC(),
	}
}

func created(v *models.Video) models.ChangeEvent {
	return models.ChangeEvent{Kind: models.EventCreated, VideoID: v.ID, Video: v}
}

func updated(v *models.Video) models.ChangeEvent {
	return models.ChangeEvent{Kind: models.EventUpdated, VideoID: v.ID, Video: v}
}

func deleted(id uuid.UUID) models.ChangeEvent {
	return models.ChangeEvent{Kind: models.EventDeleted, VideoID: id}
}

func TestApply_CreatedInserts(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()

	v.Apply(created(video(id, 1, 0)))

	got, ok := v.Get(id)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Version)
}

func TestApply_DuplicateCreatedDegradesToUpdate(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()

	v.Apply(created(video(id, 1, 0)))
	v.Apply(created(video(id, 3, 40)))

	assert.Equal(t, 1, v.Len())
	got, _ := v.Get(id)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 40, got.Progress)
}

func TestApply_UpdatedForUnknownIDInserts(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()

	v.Apply(updated(video(id, 2, 20)))

	assert.Equal(t, 1, v.Len())
}

func TestApply_StaleUpdateNeverClobbers(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()

	v.Apply(updated(video(id, 5, 70)))
	v.Apply(updated(video(id, 3, 30))) // late-arriving stale duplicate

	got, _ := v.Get(id)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, 70, got.Progress)
}

func TestApply_EqualVersionWins(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()

	v.Apply(updated(video(id, 5, 70)))
	dup := video(id, 5, 70)
	dup.Title = "retitled"
	v.Apply(updated(dup))

	got, _ := v.Get(id)
	assert.Equal(t, "retitled", got.Title)
}

func TestApply_Idempotent(t *testing.T) {
	v1 := viewcache.New()
	v2 := viewcache.New()
	id := uuid.New()
	ev := updated(video(id, 4, 55))

	v1.Apply(ev)
	v2.Apply(ev)
	v2.Apply(ev)

	assert.Equal(t, v1.Snapshot(), v2.Snapshot())
}

func TestApply_DeleteUnknownIsNoOp(t *testing.T) {
	v := viewcache.New()
	v.Apply(deleted(uuid.New()))
	assert.Equal(t, 0, v.Len())
}

func TestApply_DeleteThenCreateDoesNotResurrect(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()

	v.Apply(deleted(id))
	v.Apply(created(video(id, 1, 0)))

	assert.Equal(t, 0, v.Len())
}

func TestApply_DeleteRemoves(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()

	v.Apply(created(video(id, 1, 0)))
	v.Apply(deleted(id))

	assert.Equal(t, 0, v.Len())
}

func TestApply_ProgressMonotoneUnderReordering(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()

	// Events delivered out of order; observed progress must never decrease.
	sequence := []models.ChangeEvent{
		updated(video(id, 3, 40)),
		updated(video(id, 2, 25)),
		updated(video(id, 5, 85)),
		updated(video(id, 4, 55)),
	}

	last := -1
	for _, ev := range sequence {
		v.Apply(ev)
		got, ok := v.Get(id)
		require.True(t, ok)
		assert.GreaterOrEqual(t, got.Progress, last)
		last = got.Progress
	}
	got, _ := v.Get(id)
	assert.Equal(t, 85, got.Progress)
}

func TestApply_OrderInsensitiveConvergence(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var events []models.ChangeEvent
	for _, id := range ids {
		for ver := int64(1); ver <= 4; ver++ {
			events = append(events, updated(video(id, ver, int(ver*20))))
		}
	}
	events = append(events, deleted(ids[2]))

	reference := viewcache.New()
	for _, ev := range events {
		reference.Apply(ev)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		shuffled := make([]models.ChangeEvent, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		v := viewcache.New()
		for _, ev := range shuffled {
			v.Apply(ev)
		}
		assert.Equal(t, reference.Snapshot(), v.Snapshot(), "trial %d diverged", trial)
	}
}

func TestTwoViewsConvergeOnSameEvents(t *testing.T) {
	a := viewcache.New()
	b := viewcache.New()
	id1 := uuid.New()
	id2 := uuid.New()

	events := []models.ChangeEvent{
		created(video(id1, 1, 0)),
		created(video(id2, 1, 0)),
		updated(video(id1, 2, 50)),
		updated(video(id2, 2, 30)),
		deleted(id2),
		updated(video(id1, 3, 100)),
	}

	// a sees the events in order; b sees them reversed with duplicates.
	for _, ev := range events {
		a.Apply(ev)
	}
	for i := len(events) - 1; i >= 0; i-- {
		b.Apply(events[i])
		b.Apply(events[i])
	}

	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestSetBaseline_RespectsTombstones(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()

	// Deletion observed live before the (stale) baseline arrives.
	v.Apply(deleted(id))
	v.SetBaseline([]models.Video{*video(id, 1, 0)})

	assert.Equal(t, 0, v.Len())
}

func TestSnapshot_OrderedByRecency(t *testing.T) {
	v := viewcache.New()
	older := video(uuid.New(), 1, 0)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := video(uuid.New(), 1, 0)
	newer.CreatedAt = time.Now().UTC()

	v.SetBaseline([]models.Video{*older, *newer})

	snap := v.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, newer.ID, snap[0].ID)
	assert.Equal(t, older.ID, snap[1].ID)
}

// --- Subscription pump ---

func TestRun_PumpsFeedSubscriptionIntoView(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fd := feed.NewMemoryFeed()
	tenantID := uuid.New()
	events, unsubscribe, err := fd.Subscribe(ctx, tenantID)
	require.NoError(t, err)

	v := viewcache.New()
	v.SetBaseline(nil)

	done := make(chan struct{})
	go func() {
		v.Run(ctx, events)
		close(done)
	}()

	id := uuid.New()
	publish := func(kind string, ver int64, progress int) {
		require.NoError(t, fd.Publish(ctx, models.ChangeEvent{
			Kind:     kind,
			TenantID: tenantID,
			VideoID:  id,
			Video:    video(id, ver, progress),
		}))
	}
	publish(models.EventCreated, 1, 0)
	publish(models.EventUpdated, 2, 40)

	require.Eventually(t, func() bool {
		got, ok := v.Get(id)
		return ok && got.Version == 2 && got.Progress == 40
	}, time.Second, 5*time.Millisecond)

	// Unsubscribing closes the channel, which ends the pump.
	unsubscribe()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the subscription closed")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan models.ChangeEvent)

	v := viewcache.New()
	done := make(chan struct{})
	go func() {
		v.Run(ctx, events)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

// --- Optimistic local writes ---

func TestSpeculate_ShowsEntryImmediately(t *testing.T) {
	v := viewcache.New()
	local := video(uuid.New(), 0, 0)

	v.Speculate("corr-1", *local)

	_, ok := v.Get(local.ID)
	assert.True(t, ok)
}

func TestConfirm_NoDoubleInsertWhenCreatedArrives(t *testing.T) {
	v := viewcache.New()
	id := uuid.New()
	local := video(id, 0, 0)

	v.Speculate("corr-1", *local)
	server := video(id, 1, 0)
	v.Confirm("corr-1", *server)

	// The feed's created event for the same record arrives afterwards.
	v.Apply(created(server))

	assert.Equal(t, 1, v.Len())
	got, _ := v.Get(id)
	assert.Equal(t, int64(1), got.Version)
}

func TestConfirm_SwapsPlaceholderID(t *testing.T) {
	v := viewcache.New()
	localID := uuid.New()
	serverID := uuid.New()

	v.Speculate("corr-2", *video(localID, 0, 0))
	v.Confirm("corr-2", *video(serverID, 1, 0))

	_, ok := v.Get(localID)
	assert.False(t, ok)
	_, ok = v.Get(serverID)
	assert.True(t, ok)
	assert.Equal(t, 1, v.Len())
}

func TestAbandon_RemovesFailedSubmission(t *testing.T) {
	v := viewcache.New()
	local := video(uuid.New(), 0, 0)

	v.Speculate("corr-3", *local)
	v.Abandon("corr-3")

	assert.Equal(t, 0, v.Len())
}
