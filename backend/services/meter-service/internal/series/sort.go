package series

import (
	"sort"
	"time"

	"meterflow/backend/services/meter-service/internal/models"
)

// SortByTimestamp orders records ascending by their parsed instant, in place.
// Equal instants keep their relative order. Records whose timestamp does not parse
// are moved behind all valid ones, also keeping their relative order.
func SortByTimestamp(records []models.MergedRecord, loc *time.Location) {
	type keyed struct {
		at    time.Time
		valid bool
	}
	keys := make([]keyed, len(records))
	for i, r := range records {
		at, ok := ParseTimestamp(r.Timestamp, loc)
		keys[i] = keyed{at: at, valid: ok}
	}

	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.valid != kb.valid {
			return ka.valid
		}
		if !ka.valid {
			return false
		}
		return ka.at.Before(kb.at)
	})

	sorted := make([]models.MergedRecord, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}
