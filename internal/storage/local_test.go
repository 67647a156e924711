package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidhive/vidhive/internal/config"
	"github.com/vidhive/vidhive/internal/storage"
)

func setupLocal(t *testing.T) *storage.Local {
	t.Helper()
	gw, err := storage.NewLocal(config.StorageConfig{
		Backend:      "local",
		LocalPath:    t.TempDir(),
		LocalBaseURL: "/media",
	})
	require.NoError(t, err)
	return gw
}

func TestLocal_PutGetRoundtrip(t *testing.T) {
	gw := setupLocal(t)
	ctx := context.Background()

	body := "fake video bytes"
	err := gw.Put(ctx, "owner-1/clip.mp4", strings.NewReader(body), int64(len(body)), "video/mp4")
	require.NoError(t, err)

	rc, err := gw.Get(ctx, "owner-1/clip.mp4")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestLocal_GetMissing(t *testing.T) {
	gw := setupLocal(t)

	_, err := gw.Get(context.Background(), "nobody/missing.mp4")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestLocal_Delete(t *testing.T) {
	gw := setupLocal(t)
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, "owner-1/gone.mp4", strings.NewReader("x"), 1, "video/mp4"))
	require.NoError(t, gw.Delete(ctx, "owner-1/gone.mp4"))

	_, err := gw.Get(ctx, "owner-1/gone.mp4")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	err = gw.Delete(ctx, "owner-1/gone.mp4")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestLocal_CancelledPutLeavesNoObject(t *testing.T) {
	gw := setupLocal(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gw.Put(ctx, "owner-1/partial.mp4", strings.NewReader("data"), 4, "video/mp4")
	require.Error(t, err)

	_, err = gw.Get(context.Background(), "owner-1/partial.mp4")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestLocal_URL(t *testing.T) {
	gw := setupLocal(t)
	assert.Equal(t, "/media/owner-1/clip.mp4", gw.URL("owner-1/clip.mp4"))
}
