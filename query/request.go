package query

import "contentfeed/models"

// Request is the body of a remote query. StartAfter carries the whole cursor
// record so a cursor deleted in the meantime still marks a position.
type Request struct {
	Query      Query          `json:"query"`
	StartAfter *models.Record `json:"startAfter,omitempty"`
}
