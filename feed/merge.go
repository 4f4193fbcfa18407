package feed

import (
	"contentfeed/models"
)

// Page is one fetch worth of records in the store's own order
type Page []models.Record

// Feed is the accumulated, deduplicated, time-ordered result of a paginated
// query plus the cursor the next page resumes after. A nil Cursor means no
// page has returned data yet.
type Feed struct {
	Records []models.Record `json:"records"`
	Cursor  *models.Record  `json:"cursor,omitempty"`
}

// Len returns the number of accumulated records
func (f Feed) Len() int {
	return len(f.Records)
}

// Merge folds a freshly fetched page into an existing feed. Existing records
// win over duplicates from the page. The cursor moves to the last record of
// the page in fetch order, even when that page only held known ids, and stays
// put when the page is empty.
//
// Every page record must carry a valid timestamp. If one does not, Merge
// returns the existing feed untouched together with an ErrInvalidTimestamp.
func Merge(existing Feed, page Page) (Feed, error) {
	for _, r := range page {
		if _, err := NormalizeRecord(r); err != nil {
			mergeFailures.Inc()
			return existing, err
		}
	}

	combined := make([]models.Record, 0, len(existing.Records)+len(page))
	combined = append(combined, existing.Records...)
	combined = append(combined, page...)

	sorted, err := SortByTimeDesc(DedupByID(combined))
	if err != nil {
		mergeFailures.Inc()
		return existing, err
	}

	cursor := existing.Cursor
	if len(page) > 0 {
		last := page[len(page)-1]
		cursor = &last
	}

	mergesTotal.Inc()
	return Feed{Records: sorted, Cursor: cursor}, nil
}
