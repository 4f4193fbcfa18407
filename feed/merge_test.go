package feed_test

import (
	"math"
	"math/rand"
	"testing"

	"contentfeed/feed"
	"contentfeed/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rec builds a record whose normalized timestamp is millis
func rec(id string, millis int64) models.Record {
	return models.Record{
		ID:        id,
		CreatedAt: models.NewTimestamp(millis/1000, (millis%1000)*1_000_000),
		Data:      map[string]any{"t": float64(millis)},
	}
}

func ids(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestNormalizeTimestamp(t *testing.T) {
	seconds, nanos := 1.0, 500_000.0
	negative, nan := -1.0, math.NaN()

	tests := []struct {
		name    string
		ts      *models.Timestamp
		want    float64
		wantErr bool
	}{
		{name: "whole seconds", ts: models.NewTimestamp(2, 0), want: 2000},
		{name: "sub millisecond fraction", ts: &models.Timestamp{Seconds: &seconds, Nanoseconds: &nanos}, want: 1000.5},
		{name: "nil", ts: nil, wantErr: true},
		{name: "missing seconds", ts: &models.Timestamp{Nanoseconds: &nanos}, wantErr: true},
		{name: "missing nanoseconds", ts: &models.Timestamp{Seconds: &seconds}, wantErr: true},
		{name: "negative", ts: &models.Timestamp{Seconds: &negative, Nanoseconds: &nanos}, wantErr: true},
		{name: "nan", ts: &models.Timestamp{Seconds: &seconds, Nanoseconds: &nan}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := feed.NormalizeTimestamp(tt.ts)
			if tt.wantErr {
				assert.ErrorIs(t, err, feed.ErrInvalidTimestamp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRecordNamesRecord(t *testing.T) {
	_, err := feed.NormalizeRecord(models.Record{ID: "x"})

	var tsErr *feed.TimestampError
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, "x", tsErr.RecordID)
}

func TestDedupByIDKeepsFirst(t *testing.T) {
	first := rec("a", 100)
	dup := rec("a", 999)

	out := feed.DedupByID([]models.Record{first, rec("b", 50), dup, rec("c", 10), rec("b", 1)})

	assert.Equal(t, []string{"a", "b", "c"}, ids(out))
	assert.Equal(t, first, out[0])
}

func TestSortByTimeDescIsStable(t *testing.T) {
	in := []models.Record{rec("a", 100), rec("b", 300), rec("c", 100), rec("d", 300), rec("e", 200)}

	out, err := feed.SortByTimeDesc(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "d", "e", "a", "c"}, ids(out))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(in), "input must not be reordered")
}

func TestSortByTimeDescFailsWhole(t *testing.T) {
	in := []models.Record{rec("a", 100), {ID: "x"}, rec("b", 300)}

	out, err := feed.SortByTimeDesc(in)
	assert.ErrorIs(t, err, feed.ErrInvalidTimestamp)
	assert.Nil(t, out)
}

func TestMergeIntoEmptyFeed(t *testing.T) {
	page := feed.Page{rec("a", 100), rec("b", 200)}

	got, err := feed.Merge(feed.Feed{}, page)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, ids(got.Records))
	require.NotNil(t, got.Cursor)
	assert.Equal(t, "b", got.Cursor.ID, "cursor is the last record in fetch order")
}

func TestMergeExistingRecordsWin(t *testing.T) {
	existing := feed.Feed{Records: []models.Record{rec("b", 200), rec("a", 100)}}
	incomingA := rec("a", 100)
	incomingA.Data = map[string]any{"from": "page"}

	got, err := feed.Merge(existing, feed.Page{incomingA, rec("c", 50)})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "c"}, ids(got.Records))
	assert.Equal(t, existing.Records[1], got.Records[1], "record from the feed is kept over the page duplicate")
	require.NotNil(t, got.Cursor)
	assert.Equal(t, "c", got.Cursor.ID)
}

func TestMergeInvalidTimestampLeavesFeedUnchanged(t *testing.T) {
	existing := feed.Feed{Records: []models.Record{rec("b", 200), rec("a", 100)}}
	cursor := rec("a", 100)
	existing.Cursor = &cursor

	got, err := feed.Merge(existing, feed.Page{rec("c", 50), {ID: "x", CreatedAt: &models.Timestamp{}}})

	assert.ErrorIs(t, err, feed.ErrInvalidTimestamp)
	assert.Equal(t, existing, got)
	assert.Equal(t, []string{"b", "a"}, ids(existing.Records))
}

func TestMergeInvalidTimestampOnDuplicateStillAborts(t *testing.T) {
	existing := feed.Feed{Records: []models.Record{rec("a", 100)}}

	_, err := feed.Merge(existing, feed.Page{{ID: "a"}})
	assert.ErrorIs(t, err, feed.ErrInvalidTimestamp)
}

func TestMergeEmptyPage(t *testing.T) {
	t.Run("empty feed stays empty", func(t *testing.T) {
		got, err := feed.Merge(feed.Feed{}, nil)
		require.NoError(t, err)
		assert.Empty(t, got.Records)
		assert.Nil(t, got.Cursor)
	})

	t.Run("populated feed is unchanged", func(t *testing.T) {
		cursor := rec("a", 100)
		existing := feed.Feed{Records: []models.Record{rec("b", 200), rec("a", 100)}, Cursor: &cursor}

		got, err := feed.Merge(existing, feed.Page{})
		require.NoError(t, err)
		assert.Equal(t, existing.Records, got.Records)
		assert.Same(t, existing.Cursor, got.Cursor)
	})
}

func TestMergeDuplicatePageAdvancesCursor(t *testing.T) {
	first := rec("a", 100)
	existing := feed.Feed{Records: []models.Record{rec("b", 200), rec("a", 100)}, Cursor: &first}

	got, err := feed.Merge(existing, feed.Page{rec("a", 100), rec("b", 200)})
	require.NoError(t, err)

	assert.Equal(t, existing.Records, got.Records)
	require.NotNil(t, got.Cursor)
	assert.Equal(t, "b", got.Cursor.ID)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := feed.Feed{Records: []models.Record{rec("a", 100)}}
	page := feed.Page{rec("c", 300), rec("b", 200)}

	_, err := feed.Merge(existing, page)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, ids(existing.Records))
	assert.Equal(t, []string{"c", "b"}, ids(page))
}

func randomPage(r *rand.Rand, n int) feed.Page {
	page := make(feed.Page, n)
	for i := range page {
		// ids map to a fixed timestamp so there are no conflicting duplicates
		id := r.Intn(40)
		page[i] = rec(string(rune('A'+id)), int64(id%13)*1000)
	}
	return page
}

func TestMergeProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		p1 := randomPage(r, r.Intn(12))
		p2 := randomPage(r, r.Intn(12))

		f1, err := feed.Merge(feed.Feed{}, p1)
		require.NoError(t, err)
		incremental, err := feed.Merge(f1, p2)
		require.NoError(t, err)

		concatenated := append(append(feed.Page{}, p1...), p2...)
		single, err := feed.Merge(feed.Feed{}, concatenated)
		require.NoError(t, err)

		seen := map[string]bool{}
		for j, record := range incremental.Records {
			assert.False(t, seen[record.ID], "duplicate id %s", record.ID)
			seen[record.ID] = true
			if j > 0 {
				prev, _ := feed.NormalizeRecord(incremental.Records[j-1])
				cur, _ := feed.NormalizeRecord(record)
				assert.GreaterOrEqual(t, prev, cur)
			}
		}

		assert.ElementsMatch(t, ids(single.Records), ids(incremental.Records))

		again, err := feed.Merge(incremental, feed.Page{})
		require.NoError(t, err)
		assert.Equal(t, incremental.Records, again.Records)
		assert.Equal(t, incremental.Cursor, again.Cursor)

		replay, err := feed.Merge(incremental, p1)
		require.NoError(t, err)
		assert.Equal(t, incremental.Records, replay.Records)
	}
}
