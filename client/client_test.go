package client_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"contentfeed/client"
	"contentfeed/feed"
	"contentfeed/memstore"
	"contentfeed/models"
	"contentfeed/query"
	"contentfeed/server"
	"contentfeed/state"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp/fasthttputil"
)

// serve runs app on an in-memory listener and returns a client dialing it
func serve(t *testing.T, app *fiber.App) *client.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	return client.New(client.Config{
		BaseURL:      "http://contentfeed.test",
		Timeout:      2 * time.Second,
		MaxRetryTime: 2 * time.Second,
		Dial: func(addr string) (net.Conn, error) {
			return ln.Dial()
		},
	})
}

func serveStore(t *testing.T) (*client.Client, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	app := server.Server(&server.ServerConfig{
		Store: server.StoreFunc(func(name string) state.Collection { return store.Collection(name) }),
	})
	return serve(t, app), store
}

func TestCollectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := serveStore(t)
	require.NoError(t, c.Health(ctx))

	contents := c.Collection(models.ContentsCollection)

	record := models.Record{
		ID:        "c1",
		CreatedAt: models.NewTimestamp(100, 500),
		Data:      map[string]any{"title": "Hello", "public": true},
	}
	require.NoError(t, contents.Set(ctx, record))

	got, err := contents.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Data["title"])
	assert.Equal(t, float64(500), *got.CreatedAt.Nanoseconds)

	require.NoError(t, contents.Update(ctx, "c1", map[string]any{"title": "Bye"}))
	got, err = contents.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Bye", got.Data["title"])

	require.NoError(t, contents.Delete(ctx, "c1"))
	_, err = contents.Get(ctx, "c1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	var statusErr *client.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 404, statusErr.Code)

	assert.ErrorIs(t, contents.Update(ctx, "c1", map[string]any{"title": "x"}), models.ErrNotFound)
}

func TestPaginatorOverClient(t *testing.T) {
	ctx := context.Background()
	c, store := serveStore(t)

	local := store.Collection(models.ContentsCollection)
	for i := 0; i < 7; i++ {
		require.NoError(t, local.Set(ctx, models.Record{
			ID:        fmt.Sprintf("c%d", i),
			CreatedAt: models.NewTimestamp(int64(100+i), 0),
			Data:      map[string]any{"public": i != 3},
		}))
	}

	p := feed.NewPaginator(c.Collection(models.ContentsCollection), query.New().Where("public", query.Equal, true), 2)
	f, err := p.Load(ctx)
	require.NoError(t, err)
	for p.State() != feed.StateExhausted {
		// the cursor document going away does not break paging
		require.NoError(t, local.Delete(ctx, f.Cursor.ID))
		f, err = p.LoadMore(ctx)
		require.NoError(t, err)
	}

	ids := []string{}
	for _, r := range f.Records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"c6", "c5", "c4", "c2", "c1", "c0"}, ids)
}

func TestServicesOverClient(t *testing.T) {
	ctx := context.Background()
	c, _ := serveStore(t)

	channels := state.NewChannelService(c.Collection(models.ChannelsCollection))
	contents := state.NewContentService(c.Collection(models.ContentsCollection), nil)

	ch, err := channels.GetOrCreate(ctx, models.Channel{UserID: "u1", Key: "news", Public: true})
	require.NoError(t, err)

	added, err := contents.Add(ctx, models.Content{ChannelID: ch.ID, Key: "first", Title: "First", Public: true})
	require.NoError(t, err)

	items, err := contents.GetAllPublic(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, added.ID, items[0].ID)

	exists, err := contents.KeyExistsInChannel(ctx, "first", "u1")
	require.NoError(t, err)
	assert.True(t, exists)

	public, err := channels.GetAllPublic(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "news", public[0].Key)
}

func TestRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if attempts.Add(1) < 3 {
			return c.Status(fiber.StatusServiceUnavailable).SendString("warming up")
		}
		return c.SendString("OK")
	})

	c := serve(t, app)
	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/v1/collections/users/documents/:id", func(c *fiber.Ctx) error {
		attempts.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(server.ErrorResponse{Error: "nope"})
	})

	c := serve(t, app)
	_, err := c.Collection(models.UsersCollection).Get(context.Background(), "u1")

	var statusErr *client.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 400, statusErr.Code)
	assert.Equal(t, "nope", statusErr.Message)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestGivesUpWhenContextEnds(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusInternalServerError)
	})
	c := serve(t, app)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.Error(t, c.Health(ctx))
}

func TestChangesStream(t *testing.T) {
	store := memstore.New()
	bc := server.NewBroadcaster()
	store.OnChange(bc.Broadcast)
	app := server.Server(&server.ServerConfig{
		Store:        server.StoreFunc(func(name string) state.Collection { return store.Collection(name) }),
		Broadcaster:  bc,
		PingInterval: 50 * time.Millisecond,
	})
	c := serve(t, app)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan models.ChangeEvent, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Collection(models.ContentsCollection).Changes(ctx, func(evt models.ChangeEvent) {
			events <- evt
		})
	}()

	require.Eventually(t, func() bool { return bc.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// the stream keeps matching its collection while other requests come and go
	users := c.Collection(models.UsersCollection)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("u%d", i)
		require.NoError(t, users.Set(ctx, models.Record{ID: id, CreatedAt: models.NewTimestamp(1, 0)}))
		require.NoError(t, users.Update(ctx, id, map[string]any{"name": id}))
		_, err := users.Get(ctx, id)
		require.NoError(t, err)
		require.NoError(t, users.Delete(ctx, id))
		require.NoError(t, c.Health(ctx))
	}

	local := store.Collection(models.ContentsCollection)
	require.NoError(t, local.Set(ctx, models.Record{ID: "c1", CreatedAt: models.NewTimestamp(1, 0)}))

	select {
	case evt := <-events:
		assert.Equal(t, models.ChangeSet, evt.Operation)
		assert.Equal(t, "c1", evt.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("change stream did not stop")
	}
}
