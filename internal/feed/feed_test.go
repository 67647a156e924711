package feed_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vidhive/vidhive/internal/feed"
	"github.com/vidhive/vidhive/pkg/models"
)

func changeEvent(tenantID uuid.UUID, kind string) models.ChangeEvent {
	id := uuid.New()
	return models.ChangeEvent{
		Kind:     kind,
		TenantID: tenantID,
		VideoID:  id,
		Video: &models.Video{
			ID:       id,
			TenantID: tenantID,
			Title:    "clip",
			Status:   models.VideoStatusProcessing,
			Version:  1,
		},
	}
}

func recv(t *testing.T, ch <-chan models.ChangeEvent) models.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
		return models.ChangeEvent{}
	}
}

// --- MemoryFeed ---

func TestMemoryFeed_PublishReachesAllSubscribers(t *testing.T) {
	f := feed.NewMemoryFeed()
	ctx := context.Background()
	tenantID := uuid.New()

	ch1, stop1, err := f.Subscribe(ctx, tenantID)
	require.NoError(t, err)
	defer stop1()
	ch2, stop2, err := f.Subscribe(ctx, tenantID)
	require.NoError(t, err)
	defer stop2()

	ev := changeEvent(tenantID, models.EventCreated)
	require.NoError(t, f.Publish(ctx, ev))

	got1 := recv(t, ch1)
	got2 := recv(t, ch2)
	assert.Equal(t, ev.VideoID, got1.VideoID)
	assert.Equal(t, ev.VideoID, got2.VideoID)
}

func TestMemoryFeed_DuplicateDeliveryPassesThrough(t *testing.T) {
	f := feed.NewMemoryFeed()
	ctx := context.Background()
	tenantID := uuid.New()

	ch, stop, err := f.Subscribe(ctx, tenantID)
	require.NoError(t, err)
	defer stop()

	// At-least-once: consumers must tolerate the same event twice, so the
	// feed makes no attempt to suppress duplicate publishes.
	ev := changeEvent(tenantID, models.EventUpdated)
	require.NoError(t, f.Publish(ctx, ev))
	require.NoError(t, f.Publish(ctx, ev))

	first := recv(t, ch)
	second := recv(t, ch)
	assert.Equal(t, first.VideoID, second.VideoID)
	assert.Equal(t, first.Video.Version, second.Video.Version)
}

func TestMemoryFeed_TenantIsolation(t *testing.T) {
	f := feed.NewMemoryFeed()
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()

	chA, stopA, err := f.Subscribe(ctx, tenantA)
	require.NoError(t, err)
	defer stopA()

	require.NoError(t, f.Publish(ctx, changeEvent(tenantB, models.EventCreated)))
	evA := changeEvent(tenantA, models.EventUpdated)
	require.NoError(t, f.Publish(ctx, evA))

	// The first event chA sees must be tenant A's, never tenant B's.
	got := recv(t, chA)
	assert.Equal(t, tenantA, got.TenantID)
	assert.Equal(t, evA.VideoID, got.VideoID)
}

func TestMemoryFeed_UnsubscribeClosesChannel(t *testing.T) {
	f := feed.NewMemoryFeed()
	ctx := context.Background()
	tenantID := uuid.New()

	ch, stop, err := f.Subscribe(ctx, tenantID)
	require.NoError(t, err)
	stop()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic.
	require.NoError(t, f.Publish(ctx, changeEvent(tenantID, models.EventDeleted)))
}

// --- RedisFeed ---

func setupRedisFeed(t *testing.T) *feed.RedisFeed {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	f, err := feed.NewRedisFeed("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, f.Close()) })

	return f
}

func TestRedisFeed_PublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupRedisFeed(t)
	ctx := context.Background()
	tenantID := uuid.New()

	ch, stop, err := f.Subscribe(ctx, tenantID)
	require.NoError(t, err)
	defer stop()

	ev := changeEvent(tenantID, models.EventCreated)
	require.NoError(t, f.Publish(ctx, ev))

	got := recv(t, ch)
	assert.Equal(t, models.EventCreated, got.Kind)
	assert.Equal(t, ev.VideoID, got.VideoID)
	require.NotNil(t, got.Video)
	assert.Equal(t, int64(1), got.Video.Version)
}

func TestRedisFeed_TenantIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupRedisFeed(t)
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()

	chA, stopA, err := f.Subscribe(ctx, tenantA)
	require.NoError(t, err)
	defer stopA()

	require.NoError(t, f.Publish(ctx, changeEvent(tenantB, models.EventCreated)))
	evA := changeEvent(tenantA, models.EventCreated)
	require.NoError(t, f.Publish(ctx, evA))

	got := recv(t, chA)
	assert.Equal(t, tenantA, got.TenantID)
	assert.Equal(t, evA.VideoID, got.VideoID)
}

func TestRedisFeed_DeletedEventCarriesOnlyID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	f := setupRedisFeed(t)
	ctx := context.Background()
	tenantID := uuid.New()

	ch, stop, err := f.Subscribe(ctx, tenantID)
	require.NoError(t, err)
	defer stop()

	videoID := uuid.New()
	require.NoError(t, f.Publish(ctx, models.ChangeEvent{
		Kind:     models.EventDeleted,
		TenantID: tenantID,
		VideoID:  videoID,
	}))

	got := recv(t, ch)
	assert.Equal(t, models.EventDeleted, got.Kind)
	assert.Equal(t, videoID, got.VideoID)
	assert.Nil(t, got.Video)
}
