package feed

import (
	"math"

	"contentfeed/models"
)

// NormalizeTimestamp converts a store-native timestamp into milliseconds since
// the epoch: seconds*1000 + nanoseconds/1e6.
func NormalizeTimestamp(ts *models.Timestamp) (float64, error) {
	return normalize("", ts)
}

// NormalizeRecord is NormalizeTimestamp for a record's creation time, errors
// carry the record id.
func NormalizeRecord(r models.Record) (float64, error) {
	return normalize(r.ID, r.CreatedAt)
}

func normalize(id string, ts *models.Timestamp) (float64, error) {
	if ts == nil {
		return 0, &TimestampError{RecordID: id, Reason: "missing createdAt"}
	}
	if ts.Seconds == nil {
		return 0, &TimestampError{RecordID: id, Reason: "missing seconds"}
	}
	if ts.Nanoseconds == nil {
		return 0, &TimestampError{RecordID: id, Reason: "missing nanoseconds"}
	}
	if !validField(*ts.Seconds) {
		return 0, &TimestampError{RecordID: id, Reason: "seconds must be a finite non-negative number"}
	}
	if !validField(*ts.Nanoseconds) {
		return 0, &TimestampError{RecordID: id, Reason: "nanoseconds must be a finite non-negative number"}
	}
	return *ts.Seconds*1000 + *ts.Nanoseconds/1_000_000, nil
}

func validField(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
