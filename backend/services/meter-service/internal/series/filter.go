package series

import (
	"time"

	"meterflow/backend/services/meter-service/internal/models"
)

// FilterByRange returns the records inside the inclusive day window [start, end].
//
// start and end are YYYY-MM-DD strings. An empty or unparsable start falls back to the
// earliest record, an empty or unparsable end to the latest one. The window then runs from
// 00:00:00.000 of the start day to 23:59:59.999 of the end day in loc, with the two swapped
// when reversed. Records with unparsable timestamps are never returned. Input order is kept.
func FilterByRange(records []models.MergedRecord, start, end string, loc *time.Location) []models.MergedRecord {
	out := []models.MergedRecord{}
	if len(records) == 0 {
		return out
	}
	if loc == nil {
		loc = time.Local
	}

	instants := make([]time.Time, len(records))
	valid := make([]bool, len(records))
	var earliest, latest time.Time
	var seen bool
	for i, r := range records {
		at, ok := ParseTimestamp(r.Timestamp, loc)
		if !ok {
			continue
		}
		instants[i], valid[i] = at, true
		if !seen || at.Before(earliest) {
			earliest = at
		}
		if !seen || at.After(latest) {
			latest = at
		}
		seen = true
	}
	if !seen {
		return out
	}

	from, ok := ParseTimestamp(start, loc)
	if !ok {
		from = earliest
	}
	to, ok := ParseTimestamp(end, loc)
	if !ok {
		to = latest
	}

	from = startOfDay(from, loc)
	to = endOfDay(to, loc)
	if from.After(to) {
		from, to = startOfDay(to, loc), endOfDay(from, loc)
	}

	for i, r := range records {
		if !valid[i] {
			continue
		}
		if instants[i].Before(from) || instants[i].After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, loc)
}
