package feed

import (
	"github.com/samber/lo"

	"contentfeed/models"
)

// DedupByID keeps the first record for every id, preserving input order
func DedupByID(records []models.Record) []models.Record {
	return lo.UniqBy(records, func(r models.Record) string {
		return r.ID
	})
}
