package models_test

import (
	"math"
	"testing"
	"time"

	"contentfeed/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestTimestampValid(t *testing.T) {
	tests := []struct {
		name     string
		ts       *models.Timestamp
		expected bool
	}{
		{name: "nil timestamp", ts: nil, expected: false},
		{name: "missing seconds", ts: &models.Timestamp{Nanoseconds: f(0)}, expected: false},
		{name: "missing nanoseconds", ts: &models.Timestamp{Seconds: f(1)}, expected: false},
		{name: "negative seconds", ts: &models.Timestamp{Seconds: f(-1), Nanoseconds: f(0)}, expected: false},
		{name: "nan nanoseconds", ts: &models.Timestamp{Seconds: f(1), Nanoseconds: f(math.NaN())}, expected: false},
		{name: "infinite seconds", ts: &models.Timestamp{Seconds: f(math.Inf(1)), Nanoseconds: f(0)}, expected: false},
		{name: "zero", ts: models.NewTimestamp(0, 0), expected: true},
		{name: "regular", ts: models.NewTimestamp(1700000000, 500), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.ts.Valid())
		})
	}
}

func TestTimestampFromTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 250_000_000, time.UTC)
	ts := models.TimestampFromTime(now)

	require.True(t, ts.Valid())
	assert.Equal(t, float64(now.Unix()), *ts.Seconds)
	assert.Equal(t, float64(250_000_000), *ts.Nanoseconds)
}

func TestContentRecordConversion(t *testing.T) {
	content := models.Content{
		ID:        "c1",
		ChannelID: "u1",
		Key:       "hello-world",
		Title:     "Hello",
		Public:    true,
		CreatedAt: models.NewTimestamp(100, 0),
	}

	record, err := content.ToRecord()
	require.NoError(t, err)
	assert.Equal(t, "c1", record.ID)
	assert.Equal(t, "u1", record.Data["channelId"])
	assert.Equal(t, true, record.Data["public"])
	assert.Equal(t, false, record.Data["draft"])
	assert.NotContains(t, record.Data, "CreatedAt")

	back, err := models.ContentFromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, content, back)
}

func TestChannelFromRecordUsesRecordID(t *testing.T) {
	record := models.Record{
		ID:   "u1",
		Data: map[string]any{"userId": "u1", "key": "cats", "public": true, "contents": []any{"a", "b"}},
	}

	channel, err := models.ChannelFromRecord(record)
	require.NoError(t, err)
	assert.Equal(t, "u1", channel.ID)
	assert.Equal(t, "cats", channel.Key)
	assert.Equal(t, []string{"a", "b"}, channel.Contents)
}
