package models

import (
	"errors"
	"math"
	"time"
)

// ErrNotFound is returned by document stores when a document id does not exist
var ErrNotFound = errors.New("document not found")

// Collection names known to the document store
const (
	UsersCollection    = "users"
	ChannelsCollection = "channels"
	ContentsCollection = "contents"
)

// Collections lists every collection served by the document store
var Collections = []string{UsersCollection, ChannelsCollection, ContentsCollection}

// Timestamp is the store-native creation time: whole seconds plus a sub-second
// nanosecond fraction. Either field may be absent on malformed documents.
type Timestamp struct {
	Seconds     *float64 `json:"seconds"`
	Nanoseconds *float64 `json:"nanoseconds"`
}

// NewTimestamp builds a fully populated timestamp
func NewTimestamp(seconds, nanoseconds int64) *Timestamp {
	s := float64(seconds)
	n := float64(nanoseconds)
	return &Timestamp{Seconds: &s, Nanoseconds: &n}
}

// TimestampFromTime converts a time.Time into the store-native format
func TimestampFromTime(t time.Time) *Timestamp {
	return NewTimestamp(t.Unix(), int64(t.Nanosecond()))
}

// Valid reports whether both fields are present, finite and non-negative
func (ts *Timestamp) Valid() bool {
	if ts == nil || ts.Seconds == nil || ts.Nanoseconds == nil {
		return false
	}
	for _, v := range []float64{*ts.Seconds, *ts.Nanoseconds} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// Record is a document as seen by the feed: a stable id, a creation timestamp
// and an opaque payload.
type Record struct {
	ID        string         `json:"id"`
	CreatedAt *Timestamp     `json:"createdAt"`
	Data      map[string]any `json:"data,omitempty"`
}

// ChangeOperation names the kind of write that produced a ChangeEvent
type ChangeOperation string

const (
	ChangeSet    ChangeOperation = "set"
	ChangeUpdate ChangeOperation = "update"
	ChangeDelete ChangeOperation = "delete"
)

// ChangeEvent is fired by document stores after every successful write
type ChangeEvent struct {
	Collection string          `json:"collection"`
	Operation  ChangeOperation `json:"operation"`
	ID         string          `json:"id"`
	Record     *Record         `json:"record,omitempty"`
}

// User model with the profile fields kept in the users collection
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	PhotoURL  string     `json:"photoURL,omitempty"`
	CreatedAt *Timestamp `json:"-"`
}

// Channel is owned by a single user, the document id is the owner's user id
type Channel struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Key         string     `json:"key,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Public      bool       `json:"public"`
	Contents    []string   `json:"contents,omitempty"`
	CreatedAt   *Timestamp `json:"-"`
}

// Content is a single published (or draft) item of a channel
type Content struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channelId"`
	Key       string     `json:"key,omitempty"`
	Title     string     `json:"title,omitempty"`
	Body      string     `json:"body,omitempty"`
	Public    bool       `json:"public"`
	Draft     bool       `json:"draft"`
	Language  string     `json:"language,omitempty"`
	CreatedAt *Timestamp `json:"-"`
}
