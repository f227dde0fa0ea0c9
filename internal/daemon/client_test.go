package daemon

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
)

func TestClient_Offline(t *testing.T) {
	client := NewClient(Config{SocketPath: testSocketPath(t), Timeout: 100 * time.Millisecond})

	assert.False(t, client.IsRunning())

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, sferrors.ErrCodeDaemonOffline, sferrors.GetCode(err))
	assert.True(t, sferrors.IsRetryable(err))
}

func TestClient_AllMethods(t *testing.T) {
	h := &fakeHandler{}
	socketPath, _, _ := startServer(t, h)
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})
	ctx := context.Background()

	require.True(t, client.IsRunning())
	require.NoError(t, client.Ping(ctx))

	res, err := client.Search(ctx, SearchParams{Query: "solo", PageSize: 5})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 5, h.lastSearch().PageSize)

	stats, err := client.Ingest(ctx, IngestParams{Events: []json.RawMessage{
		json.RawMessage(`{"channel_id":"c","item_id":"1","caption":"one"}`),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Len(t, h.lastIngest().Events, 1)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, 2, status.Index.Live)

	snap, err := client.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Documents)
	assert.Equal(t, uint64(9), snap.Watermark)

	compact, err := client.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, compact.Removed)
}

func TestClient_TypedErrorsSurviveTheSocket(t *testing.T) {
	socketPath, _, _ := startServer(t, &fakeHandler{
		searchErr: sferrors.InvalidCursor("cursor does not match query", nil),
	})
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	_, err := client.Search(context.Background(), SearchParams{Query: "solo", Cursor: "x"})

	require.Error(t, err)
	assert.Equal(t, sferrors.ErrCodeInvalidCursor, sferrors.GetCode(err))
	assert.Contains(t, err.Error(), "cursor does not match query")
}
