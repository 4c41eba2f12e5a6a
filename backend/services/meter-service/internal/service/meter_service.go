package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meterflow/backend/services/meter-service/internal/models"
	"meterflow/backend/services/meter-service/internal/parser"
	"meterflow/backend/services/meter-service/internal/series"
	"meterflow/backend/services/meter-service/internal/store"
	"meterflow/backend/services/meter-service/internal/ws"
)

// Ingestion sources recorded on snapshots.
const (
	SourceUpload  = "upload"
	SourceBackend = "backend"
	SourceReload  = "backend-reload"
	SourceInbox   = "inbox"
)

var (
	// ErrNoInput is returned when neither SDAT nor ESL text was supplied.
	ErrNoInput = errors.New("no SDAT or ESL files provided")
	// ErrNoRecords is returned when an ingestion produced an empty series; the current one is kept.
	ErrNoRecords = errors.New("ingestion produced no records")
	// ErrBackendDisabled is returned by Reload when no upstream backend is configured.
	ErrBackendDisabled = errors.New("upstream backend not configured")
	// ErrUpstream wraps failures of the upstream backend request.
	ErrUpstream = errors.New("upstream backend request failed")
)

// MeterFetcher loads the grouped payload from an upstream backend.
type MeterFetcher interface {
	FetchMeters(ctx context.Context) (*models.MeterResponse, error)
}

// EventPublisher is notified after the current series changed.
type EventPublisher interface {
	Broadcast(evt ws.Event)
}

// MeterService owns the current merged series.
type MeterService struct {
	store     store.SeriesStore
	parser    *parser.Parser
	fetcher   MeterFetcher
	publisher EventPublisher
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time

	// ingestMu serializes replacement so only one ingestion result becomes current at a time.
	ingestMu sync.Mutex
}

// Options configures NewMeterService. Fetcher and Publisher may be nil.
type Options struct {
	Store     store.SeriesStore
	Parser    *parser.Parser
	Fetcher   MeterFetcher
	Publisher EventPublisher
	Location  *time.Location
	Logger    *zap.Logger
}

// NewMeterService returns service instance.
func NewMeterService(opts Options) *MeterService {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	p := opts.Parser
	if p == nil {
		p = parser.New(loc)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeterService{
		store:     opts.Store,
		parser:    p,
		fetcher:   opts.Fetcher,
		publisher: opts.Publisher,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
}

// Location returns the zone used for timestamps and day boundaries.
func (s *MeterService) Location() *time.Location {
	return s.loc
}

// IngestFiles reconciles the given SDAT and ESL files and makes the result current.
// Each file is parsed on its own; rows of the same family are appended in file order.
func (s *MeterService) IngestFiles(ctx context.Context, source string, sdatFiles, eslFiles []parser.Input) (*store.Snapshot, error) {
	if len(sdatFiles) == 0 && len(eslFiles) == 0 {
		return nil, ErrNoInput
	}

	intervals, err := s.parser.ParseIntervalInputs(sdatFiles)
	if err != nil {
		return nil, err
	}
	registers, err := s.parser.ParseRegisterInputs(eslFiles)
	if err != nil {
		return nil, err
	}
	s.logger.Info("parsed raw exports",
		zap.String("source", source),
		zap.Int("sdat_files", len(sdatFiles)),
		zap.Int("esl_files", len(eslFiles)),
		zap.Int("interval_rows", len(intervals)),
		zap.Int("register_rows", len(registers)),
	)

	records, err := series.Reconcile(intervals, registers, s.loc)
	if err != nil {
		return nil, err
	}
	return s.replace(ctx, source, records)
}

// IngestBackend flattens a structured backend payload and makes it current.
func (s *MeterService) IngestBackend(ctx context.Context, source string, resp *models.MeterResponse) (*store.Snapshot, error) {
	records := series.Flatten(resp, s.loc)
	return s.replace(ctx, source, records)
}

// Reload fetches the payload from the upstream backend and ingests it.
func (s *MeterService) Reload(ctx context.Context) (*store.Snapshot, error) {
	if s.fetcher == nil {
		return nil, ErrBackendDisabled
	}
	resp, err := s.fetcher.FetchMeters(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return s.IngestBackend(ctx, SourceReload, resp)
}

// Range returns the current snapshot restricted to the [from, to] day window.
func (s *MeterService) Range(ctx context.Context, from, to string) (*store.Snapshot, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	snap.Records = series.FilterByRange(snap.Records, from, to, s.loc)
	return snap, nil
}

// Clear drops the current series.
func (s *MeterService) Clear(ctx context.Context) error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear series: %w", err)
	}
	s.logger.Info("series cleared")
	s.publish(ws.Event{Type: ws.EventSeriesCleared, At: s.now().UTC()})
	return nil
}

func (s *MeterService) replace(ctx context.Context, source string, records []models.MergedRecord) (*store.Snapshot, error) {
	if len(records) == 0 {
		s.logger.Warn("ingestion produced no records, keeping current series", zap.String("source", source))
		return nil, ErrNoRecords
	}

	snap := store.Snapshot{
		IngestionID: uuid.NewString(),
		Source:      source,
		IngestedAt:  s.now().UTC(),
		Records:     records,
	}

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if err := s.store.Replace(ctx, snap); err != nil {
		return nil, fmt.Errorf("replace series: %w", err)
	}
	s.logger.Info("series replaced",
		zap.String("ingestion_id", snap.IngestionID),
		zap.String("source", source),
		zap.Int("records", len(records)),
	)
	s.publish(ws.Event{
		Type:        ws.EventSeriesReplaced,
		IngestionID: snap.IngestionID,
		Source:      source,
		Records:     len(records),
		At:          snap.IngestedAt,
	})
	return &snap, nil
}

func (s *MeterService) publish(evt ws.Event) {
	if s.publisher != nil {
		s.publisher.Broadcast(evt)
	}
}
