package series

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"meterflow/backend/services/meter-service/internal/models"
)

// InvalidValueError reports a row whose numeric value is NaN or infinite.
type InvalidValueError struct {
	Kind      string
	Timestamp string
	Value     float64
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("series: %s row at %q has non-finite value %v", e.Kind, e.Timestamp, e.Value)
}

// Reconcile joins interval rows with register rows on their timestamp.
//
// For every interval row the register row with the same timestamp is looked up (first one wins
// when several share it) and the register reading becomes register + consumption. Without a
// register row the reading equals the consumption. Register rows without an interval row are
// dropped. The result is sorted by timestamp.
func Reconcile(intervals []models.RawIntervalRow, registers []models.RawRegisterRow, loc *time.Location) ([]models.MergedRecord, error) {
	byTimestamp := make(map[string]float64, len(registers))
	for _, reg := range registers {
		if !finite(reg.Value) {
			return nil, &InvalidValueError{Kind: "register", Timestamp: reg.Timestamp, Value: reg.Value}
		}
		key := timestampKey(reg.Timestamp, loc)
		if _, exists := byTimestamp[key]; exists {
			continue
		}
		byTimestamp[key] = reg.Value
	}

	out := make([]models.MergedRecord, 0, len(intervals))
	for _, row := range intervals {
		if !finite(row.Value) {
			return nil, &InvalidValueError{Kind: "interval", Timestamp: row.Timestamp, Value: row.Value}
		}
		reading := row.Value
		if register, ok := byTimestamp[timestampKey(row.Timestamp, loc)]; ok {
			reading = addReadings(register, row.Value)
		}
		out = append(out, models.MergedRecord{
			Timestamp:    row.Timestamp,
			ID:           row.MeterID,
			Verbrauch:    row.Value,
			Zaehlerstand: reading,
		})
	}

	SortByTimestamp(out, loc)
	return out, nil
}

// timestampKey makes "2023-01-01T00:00:00Z" and "2023-01-01T01:00:00+01:00" collide while
// leaving unparsable timestamps to match on their exact text.
func timestampKey(ts string, loc *time.Location) string {
	if at, ok := ParseTimestamp(ts, loc); ok {
		return "t:" + strconv.FormatInt(at.UnixNano(), 10)
	}
	return "s:" + strings.TrimSpace(ts)
}

func addReadings(register, consumption float64) float64 {
	return decimal.NewFromFloat(register).Add(decimal.NewFromFloat(consumption)).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
