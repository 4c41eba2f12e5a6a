package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meterflow/backend/services/meter-service/internal/models"
	"meterflow/backend/services/meter-service/internal/parser"
	"meterflow/backend/services/meter-service/internal/store"
	"meterflow/backend/services/meter-service/internal/ws"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []ws.Event
}

func (p *recordingPublisher) Broadcast(evt ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

type stubFetcher struct {
	resp *models.MeterResponse
	err  error
}

func (f stubFetcher) FetchMeters(context.Context) (*models.MeterResponse, error) {
	return f.resp, f.err
}

func newTestService(fetcher MeterFetcher) (*MeterService, *store.MemoryStore, *recordingPublisher) {
	st := store.NewMemoryStore()
	pub := &recordingPublisher{}
	svc := NewMeterService(Options{
		Store:     st,
		Fetcher:   fetcher,
		Publisher: pub,
		Location:  time.UTC,
	})
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, st, pub
}

func f64(v float64) *float64 { return &v }

func files(texts ...string) []parser.Input {
	out := make([]parser.Input, 0, len(texts))
	for i, text := range texts {
		out = append(out, parser.Input{Name: fmt.Sprintf("file%d", i+1), Text: text})
	}
	return out
}

func TestIngestFilesReconcilesAndReplaces(t *testing.T) {
	svc, st, pub := newTestService(nil)

	snap, err := svc.IngestFiles(context.Background(), SourceUpload,
		files("2023-01-01T00:00:00,735,100", "2023-01-01T01:00:00,742,200\n2023-01-01T02:00:00,999,5"),
		files("2023-01-01T00:00:00,50\n2023-01-01T01:00:00,100"),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.IngestionID)
	assert.Equal(t, SourceUpload, snap.Source)
	assert.Equal(t, []models.MergedRecord{
		{Timestamp: "2023-01-01T00:00:00", ID: "735", Verbrauch: 100, Zaehlerstand: 150},
		{Timestamp: "2023-01-01T01:00:00", ID: "742", Verbrauch: 200, Zaehlerstand: 300},
	}, snap.Records)

	current, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.IngestionID, current.IngestionID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, ws.EventSeriesReplaced, pub.events[0].Type)
	assert.Equal(t, 2, pub.events[0].Records)
}

func TestIngestFilesErrors(t *testing.T) {
	svc, st, pub := newTestService(nil)
	ctx := context.Background()

	_, err := svc.IngestFiles(ctx, SourceUpload, nil, nil)
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = svc.IngestFiles(ctx, SourceUpload, files("2023-01-01T00:00:00,735"), nil)
	var perr *parser.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "sdat", perr.Source)

	// register rows alone never produce records
	_, err = svc.IngestFiles(ctx, SourceUpload, nil, files("2023-01-01T00:00:00,50"))
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = st.Load(ctx)
	assert.ErrorIs(t, err, store.ErrEmpty)
	assert.Empty(t, pub.events)
}

func TestIngestFilesReportsFailingFile(t *testing.T) {
	svc, st, _ := newTestService(nil)

	_, err := svc.IngestFiles(context.Background(), SourceUpload, []parser.Input{
		{Name: "january.sdat", Text: "2023-01-01T00:00:00,735,1\n2023-01-01T01:00:00,735,2\n"},
		{Name: "february.sdat", Text: "2023-01-01T02:00:00,735,oops\n"},
	}, nil)

	var perr *parser.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "sdat", perr.Source)
	assert.Equal(t, "february.sdat", perr.File)
	assert.Equal(t, 1, perr.Line)
	assert.ErrorIs(t, err, parser.ErrValue)

	_, err = st.Load(context.Background())
	assert.ErrorIs(t, err, store.ErrEmpty)
}

func TestEmptyIngestionKeepsCurrentSeries(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()

	first, err := svc.IngestFiles(ctx, SourceUpload, files("2023-01-01T00:00:00,735,1"), nil)
	require.NoError(t, err)

	_, err = svc.IngestFiles(ctx, SourceUpload, files("2023-01-01T00:00:00,111,1"), nil)
	require.ErrorIs(t, err, ErrNoRecords)

	current, err := svc.Range(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, first.IngestionID, current.IngestionID)
}

func TestIngestBackendFlattens(t *testing.T) {
	svc, _, _ := newTestService(nil)

	snap, err := svc.IngestBackend(context.Background(), SourceBackend, &models.MeterResponse{
		Meters: []models.MeterGroup{{
			SensorID: "735",
			Measurements: []models.Measurement{
				{Timestamp: "2023-01-01T00:00:00", Relative: 1.5, Absolute: f64(1001.5)},
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.MergedRecord{
		{Timestamp: "2023-01-01T00:00:00", ID: "735", Verbrauch: 1.5, Zaehlerstand: 1001.5},
	}, snap.Records)
}

func TestReload(t *testing.T) {
	svc, _, _ := newTestService(nil)
	_, err := svc.Reload(context.Background())
	assert.ErrorIs(t, err, ErrBackendDisabled)

	upstream := errors.New("connection refused")
	svc, _, _ = newTestService(stubFetcher{err: upstream})
	_, err = svc.Reload(context.Background())
	assert.ErrorIs(t, err, upstream)
	assert.ErrorIs(t, err, ErrUpstream)

	svc, _, _ = newTestService(stubFetcher{resp: &models.MeterResponse{
		Meters: []models.MeterGroup{{
			SensorID:     "742",
			Measurements: []models.Measurement{{Timestamp: "2023-01-02T00:00:00", Relative: 2, Absolute: f64(20)}},
		}},
	}})
	snap, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceReload, snap.Source)
	assert.Len(t, snap.Records, 1)
}

func TestRangeFiltersByDay(t *testing.T) {
	svc, _, _ := newTestService(nil)
	ctx := context.Background()

	_, err := svc.Range(ctx, "", "")
	assert.ErrorIs(t, err, store.ErrEmpty)

	_, err = svc.IngestFiles(ctx, SourceUpload, files(
		"2023-01-01T10:00:00,735,1\n2023-01-02T10:00:00,735,2\n2023-01-03T10:00:00,735,3",
	), nil)
	require.NoError(t, err)

	snap, err := svc.Range(ctx, "2023-01-02", "2023-01-02")
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, 2.0, snap.Records[0].Verbrauch)

	all, err := svc.Range(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all.Records, 3)
}

func TestClear(t *testing.T) {
	svc, _, pub := newTestService(nil)
	ctx := context.Background()

	_, err := svc.IngestFiles(ctx, SourceUpload, files("2023-01-01T00:00:00,735,1"), nil)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx))

	_, err = svc.Range(ctx, "", "")
	assert.ErrorIs(t, err, store.ErrEmpty)
	require.Len(t, pub.events, 2)
	assert.Equal(t, ws.EventSeriesCleared, pub.events[1].Type)
}
