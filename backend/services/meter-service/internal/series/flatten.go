package series

import (
	"time"

	"meterflow/backend/services/meter-service/internal/models"
)

// Flatten turns a backend response grouped by meter into merged records.
// The backend already supplies the register reading, so absolute is copied as is; a
// missing absolute falls back to the relative value. The result is sorted by timestamp.
func Flatten(resp *models.MeterResponse, loc *time.Location) []models.MergedRecord {
	if resp == nil {
		return []models.MergedRecord{}
	}

	var total int
	for _, group := range resp.Meters {
		total += len(group.Measurements)
	}

	out := make([]models.MergedRecord, 0, total)
	for _, group := range resp.Meters {
		for _, m := range group.Measurements {
			reading := m.Relative
			if m.Absolute != nil {
				reading = *m.Absolute
			}
			out = append(out, models.MergedRecord{
				Timestamp:    m.Timestamp,
				ID:           group.SensorID,
				Verbrauch:    m.Relative,
				Zaehlerstand: reading,
			})
		}
	}

	SortByTimestamp(out, loc)
	return out
}
