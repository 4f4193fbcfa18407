package db_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"contentfeed/db"
	"contentfeed/feed"
	"contentfeed/models"
	"contentfeed/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func content(id, channel string, seconds int64, public, draft bool) models.Record {
	return models.Record{
		ID:        id,
		CreatedAt: models.NewTimestamp(seconds, 0),
		Data: map[string]any{
			"id":        id,
			"channelId": channel,
			"key":       "key-" + id,
			"public":    public,
			"draft":     draft,
		},
	}
}

func recordIDs(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestSetGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	contents := openTestDB(t).Collection(models.ContentsCollection)

	require.NoError(t, contents.Set(ctx, content("c1", "u1", 100, true, false)))

	got, err := contents.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "u1", got.Data["channelId"])
	assert.Equal(t, true, got.Data["public"])
	require.True(t, got.CreatedAt.Valid())
	assert.Equal(t, float64(100), *got.CreatedAt.Seconds)

	require.NoError(t, contents.Update(ctx, "c1", map[string]any{"title": "Hello", "id": "ignored"}))
	got, err = contents.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Data["title"])
	assert.Equal(t, "c1", got.Data["id"])
	assert.Equal(t, "u1", got.Data["channelId"], "update keeps other fields")

	require.NoError(t, contents.Delete(ctx, "c1"))
	_, err = contents.Get(ctx, "c1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.NoError(t, contents.Delete(ctx, "c1"), "deleting a missing document is not an error")
}

func TestUpdateMissingDocument(t *testing.T) {
	contents := openTestDB(t).Collection(models.ContentsCollection)

	err := contents.Update(context.Background(), "nope", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)

	require.NoError(t, store.Collection(models.ChannelsCollection).Set(ctx, models.Record{ID: "u1", Data: map[string]any{"key": "k"}}))

	_, err := store.Collection(models.UsersCollection).Get(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestQueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	contents := openTestDB(t).Collection(models.ContentsCollection)

	for _, r := range []models.Record{
		content("a", "u1", 100, true, false),
		content("b", "u1", 300, true, true),
		content("c", "u2", 200, true, false),
		content("d", "u2", 400, false, false),
		content("e", "u1", 500, true, false),
	} {
		require.NoError(t, contents.Set(ctx, r))
	}

	public := query.New().
		Where("public", query.Equal, true).
		Where("draft", query.Equal, false)

	page, err := contents.Query(ctx, public)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "c", "a"}, recordIDs(page))

	page, err = contents.Query(ctx, query.New().Where("channelId", query.Equal, "u1").WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "b"}, recordIDs(page))

	page, err = contents.Query(ctx, query.New().Order(query.CreatedAt, query.Asc).WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, recordIDs(page))

	page, err = contents.Query(ctx, query.New().Where("id", query.Equal, "d"))
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, recordIDs(page))

	page, err = contents.Query(ctx, query.New().Order("key", query.Asc))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, recordIDs(page))
}

func TestQueryAfterResumesAfterCursor(t *testing.T) {
	ctx := context.Background()
	contents := openTestDB(t).Collection(models.ContentsCollection)

	for i := 0; i < 7; i++ {
		// two records per second to exercise the id tie-break
		require.NoError(t, contents.Set(ctx, content(fmt.Sprintf("c%d", i), "u1", int64(100+i/2), true, false)))
	}

	q := query.New().WithLimit(3)
	var seen []string

	page, err := contents.Query(ctx, q)
	require.NoError(t, err)
	for len(page) > 0 {
		seen = append(seen, recordIDs(page)...)
		page, err = contents.QueryAfter(ctx, q, page[len(page)-1])
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"c6", "c5", "c4", "c3", "c2", "c1", "c0"}, seen)
}

func TestQueryAfterOnPayloadField(t *testing.T) {
	ctx := context.Background()
	contents := openTestDB(t).Collection(models.ContentsCollection)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, contents.Set(ctx, content(id, "u1", 100, true, false)))
	}

	q := query.New().Order("key", query.Desc).WithLimit(1)
	first, err := contents.Query(ctx, q)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "c", first[0].ID)

	next, err := contents.QueryAfter(ctx, q, first[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, recordIDs(next))
}

func TestQueryAfterRejectsCursorWithoutTimestamp(t *testing.T) {
	contents := openTestDB(t).Collection(models.ContentsCollection)

	_, err := contents.QueryAfter(context.Background(), query.New(), models.Record{ID: "x"})
	assert.ErrorIs(t, err, feed.ErrInvalidTimestamp)
}

func TestQueryRejectsInvalidQuery(t *testing.T) {
	contents := openTestDB(t).Collection(models.ContentsCollection)

	_, err := contents.Query(context.Background(), query.New().Where("bad field", query.Equal, 1))
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestMissingTimestampsSortLast(t *testing.T) {
	ctx := context.Background()
	contents := openTestDB(t).Collection(models.ContentsCollection)

	require.NoError(t, contents.Set(ctx, models.Record{ID: "broken", Data: map[string]any{"public": true}}))
	require.NoError(t, contents.Set(ctx, content("ok", "u1", 100, true, false)))

	page, err := contents.Query(ctx, query.New())
	require.NoError(t, err)
	require.Equal(t, []string{"ok", "broken"}, recordIDs(page))
	assert.Nil(t, page[1].CreatedAt)

	_, err = feed.Merge(feed.Feed{}, page)
	assert.ErrorIs(t, err, feed.ErrInvalidTimestamp)
}

func TestPaginatorOverDatabase(t *testing.T) {
	ctx := context.Background()
	contents := openTestDB(t).Collection(models.ContentsCollection)

	for i := 0; i < 10; i++ {
		require.NoError(t, contents.Set(ctx, content(fmt.Sprintf("c%02d", i), "u1", int64(1000+i), i%3 != 0, false)))
	}

	p := feed.NewPaginator(contents, query.New().Where("public", query.Equal, true), 4)

	f, err := p.Load(ctx)
	require.NoError(t, err)
	for p.State() != feed.StateExhausted {
		f, err = p.LoadMore(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"c08", "c07", "c05", "c04", "c02", "c01"}, recordIDs(f.Records))
}

func TestChangeEvents(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)
	contents := store.Collection(models.ContentsCollection)

	var events []models.ChangeEvent
	store.OnChange(func(evt models.ChangeEvent) {
		events = append(events, evt)
	})

	require.NoError(t, contents.Set(ctx, content("c1", "u1", 100, true, false)))
	require.NoError(t, contents.Update(ctx, "c1", map[string]any{"draft": true}))
	require.NoError(t, contents.Delete(ctx, "c1"))
	require.NoError(t, contents.Delete(ctx, "c1"))

	require.Len(t, events, 3)
	assert.Equal(t, models.ChangeSet, events[0].Operation)
	assert.Equal(t, models.ChangeUpdate, events[1].Operation)
	assert.Equal(t, true, events[1].Record.Data["draft"])
	assert.Equal(t, models.ChangeDelete, events[2].Operation)
	assert.Equal(t, models.ContentsCollection, events[2].Collection)
}

func TestRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollback.db")
	require.NoError(t, db.Migrate(path))
	require.NoError(t, db.Rollback(path))
	require.NoError(t, db.Migrate(path))
}

func TestTidyRemovesOldDrafts(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)
	contents := store.Collection(models.ContentsCollection)

	require.NoError(t, contents.Set(ctx, content("old-draft", "u1", 100, false, true)))
	require.NoError(t, contents.Set(ctx, content("old-public", "u1", 100, true, false)))
	require.NoError(t, contents.Set(ctx, content("new-draft", "u1", 5000, false, true)))

	var deleted []string
	store.OnChange(func(evt models.ChangeEvent) {
		if evt.Operation == models.ChangeDelete {
			deleted = append(deleted, evt.ID)
		}
	})

	n, err := store.Tidy(ctx, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"old-draft"}, deleted)

	page, err := contents.Query(ctx, query.New())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old-public", "new-draft"}, recordIDs(page))
}
