package series

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meterflow/backend/services/meter-service/internal/models"
)

func TestReconcileWorkedExample(t *testing.T) {
	intervals := []models.RawIntervalRow{
		{Timestamp: "2023-01-01T00:00:00", MeterID: "735", Value: 100},
		{Timestamp: "2023-01-01T01:00:00", MeterID: "742", Value: 200},
	}
	registers := []models.RawRegisterRow{
		{Timestamp: "2023-01-01T00:00:00", Value: 50},
		{Timestamp: "2023-01-01T01:00:00", Value: 100},
	}

	got, err := Reconcile(intervals, registers, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, []models.MergedRecord{
		{Timestamp: "2023-01-01T00:00:00", ID: "735", Verbrauch: 100, Zaehlerstand: 150},
		{Timestamp: "2023-01-01T01:00:00", ID: "742", Verbrauch: 200, Zaehlerstand: 300},
	}, got)
}

func TestReconcileFallsBackWithoutRegister(t *testing.T) {
	intervals := []models.RawIntervalRow{
		{Timestamp: "2023-01-01T00:00:00", MeterID: "735", Value: 12.5},
		{Timestamp: "2023-01-01T00:15:00", MeterID: "735", Value: 7},
	}
	registers := []models.RawRegisterRow{
		{Timestamp: "2023-01-01T00:00:00", Value: 1000},
	}

	got, err := Reconcile(intervals, registers, time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1012.5, got[0].Zaehlerstand)
	assert.Equal(t, got[1].Verbrauch, got[1].Zaehlerstand)
}

func TestReconcileDropsRegisterOnlyTimestamps(t *testing.T) {
	intervals := []models.RawIntervalRow{
		{Timestamp: "2023-01-01T00:00:00", MeterID: "742", Value: 1},
	}
	registers := []models.RawRegisterRow{
		{Timestamp: "2023-01-01T00:00:00", Value: 10},
		{Timestamp: "2023-01-02T00:00:00", Value: 20},
		{Timestamp: "2023-01-03T00:00:00", Value: 30},
	}

	got, err := Reconcile(intervals, registers, time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 11.0, got[0].Zaehlerstand)
}

func TestReconcileFirstRegisterMatchWins(t *testing.T) {
	intervals := []models.RawIntervalRow{
		{Timestamp: "2023-01-01T00:00:00", MeterID: "735", Value: 1},
	}
	registers := []models.RawRegisterRow{
		{Timestamp: "2023-01-01T00:00:00", Value: 10},
		{Timestamp: "2023-01-01T00:00:00", Value: 99},
	}

	got, err := Reconcile(intervals, registers, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 11.0, got[0].Zaehlerstand)
}

func TestReconcileMatchesSameInstantAcrossOffsets(t *testing.T) {
	intervals := []models.RawIntervalRow{
		{Timestamp: "2023-01-01T01:00:00+01:00", MeterID: "735", Value: 1},
	}
	registers := []models.RawRegisterRow{
		{Timestamp: "2023-01-01T00:00:00Z", Value: 10},
	}

	got, err := Reconcile(intervals, registers, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 11.0, got[0].Zaehlerstand)
	assert.Equal(t, "2023-01-01T01:00:00+01:00", got[0].Timestamp)
}

func TestReconcileKeepsDuplicateIntervals(t *testing.T) {
	intervals := []models.RawIntervalRow{
		{Timestamp: "2023-01-01T00:00:00", MeterID: "735", Value: 1},
		{Timestamp: "2023-01-01T00:00:00", MeterID: "742", Value: 2},
	}
	registers := []models.RawRegisterRow{{Timestamp: "2023-01-01T00:00:00", Value: 10}}

	got, err := Reconcile(intervals, registers, time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "735", got[0].ID)
	assert.Equal(t, 11.0, got[0].Zaehlerstand)
	assert.Equal(t, "742", got[1].ID)
	assert.Equal(t, 12.0, got[1].Zaehlerstand)
}

func TestReconcileSortsOutput(t *testing.T) {
	intervals := []models.RawIntervalRow{
		{Timestamp: "2023-01-03T00:00:00", MeterID: "735", Value: 3},
		{Timestamp: "2023-01-01T00:00:00", MeterID: "735", Value: 1},
		{Timestamp: "2023-01-02T12:00:00", MeterID: "742", Value: 2},
		{Timestamp: "2023-01-01T00:00:00", MeterID: "742", Value: 4},
	}

	got, err := Reconcile(intervals, nil, time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assertSorted(t, got)

	// ties keep input order
	assert.Equal(t, "735", got[0].ID)
	assert.Equal(t, "742", got[1].ID)
}

func TestReconcileDecimalAddition(t *testing.T) {
	intervals := []models.RawIntervalRow{{Timestamp: "2023-01-01T00:00:00", MeterID: "735", Value: 0.1}}
	registers := []models.RawRegisterRow{{Timestamp: "2023-01-01T00:00:00", Value: 0.2}}

	got, err := Reconcile(intervals, registers, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got[0].Zaehlerstand)
}

func TestReconcileRejectsNonFiniteValues(t *testing.T) {
	tests := []struct {
		name      string
		intervals []models.RawIntervalRow
		registers []models.RawRegisterRow
		kind      string
	}{
		{
			name:      "nan interval",
			intervals: []models.RawIntervalRow{{Timestamp: "2023-01-01T00:00:00", MeterID: "735", Value: math.NaN()}},
			kind:      "interval",
		},
		{
			name:      "inf register",
			intervals: []models.RawIntervalRow{{Timestamp: "2023-01-01T00:00:00", MeterID: "735", Value: 1}},
			registers: []models.RawRegisterRow{{Timestamp: "2023-01-01T00:00:00", Value: math.Inf(1)}},
			kind:      "register",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(tt.intervals, tt.registers, time.UTC)
			require.Error(t, err)
			assert.Nil(t, got)

			var invalid *InvalidValueError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.kind, invalid.Kind)
		})
	}
}

func TestReconcileEmpty(t *testing.T) {
	got, err := Reconcile(nil, nil, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func assertSorted(t *testing.T, records []models.MergedRecord) {
	t.Helper()
	for i := 1; i < len(records); i++ {
		prev, ok := ParseTimestamp(records[i-1].Timestamp, time.UTC)
		require.True(t, ok)
		cur, ok := ParseTimestamp(records[i].Timestamp, time.UTC)
		require.True(t, ok)
		assert.False(t, cur.Before(prev), "records %d and %d out of order", i-1, i)
	}
}
