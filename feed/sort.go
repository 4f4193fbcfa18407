package feed

import (
	"cmp"
	"slices"

	"contentfeed/models"
)

type keyed struct {
	millis float64
	record models.Record
}

// SortByTimeDesc returns a new slice ordered most recent first. Records with
// equal timestamps keep their input order. If any record fails normalization
// nothing is sorted and the error is returned.
func SortByTimeDesc(records []models.Record) ([]models.Record, error) {
	keys := make([]keyed, len(records))
	for i, r := range records {
		millis, err := NormalizeRecord(r)
		if err != nil {
			return nil, err
		}
		keys[i] = keyed{millis: millis, record: r}
	}

	slices.SortStableFunc(keys, func(a, b keyed) int {
		return cmp.Compare(b.millis, a.millis)
	})

	out := make([]models.Record, len(keys))
	for i, k := range keys {
		out[i] = k.record
	}
	return out, nil
}
