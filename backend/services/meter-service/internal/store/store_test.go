package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meterflow/backend/services/meter-service/internal/models"
)

func snapshot(id string) Snapshot {
	return Snapshot{
		IngestionID: id,
		Source:      "upload",
		IngestedAt:  time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
		Records: []models.MergedRecord{
			{Timestamp: "2023-01-01T00:00:00", ID: "735", Verbrauch: 100, Zaehlerstand: 150},
		},
	}
}

func exerciseStore(t *testing.T, s SeriesStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, s.Replace(ctx, snapshot("first")))
	require.NoError(t, s.Replace(ctx, snapshot("second")))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got.IngestionID)
	assert.True(t, got.IngestedAt.Equal(snapshot("").IngestedAt))
	assert.Equal(t, snapshot("").Records, got.Records)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, snapshot("a")))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	got.Records[0].ID = "mutated"

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "735", again.Records[0].ID)
}

func TestRedisStore(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	exerciseStore(t, NewRedisStore(client, "", 0))
}

func TestRedisStoreTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, "test:series", time.Minute)
	require.NoError(t, s.Replace(context.Background(), snapshot("ttl")))
	assert.Equal(t, time.Minute, srv.TTL("test:series"))

	srv.FastForward(2 * time.Minute)
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisStoreCorruptPayload(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	require.NoError(t, srv.Set(defaultKey, "{not json"))
	_, err := NewRedisStore(client, "", 0).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmpty)
}
