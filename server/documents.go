package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"contentfeed/feed"
	"contentfeed/models"
	"contentfeed/query"
	"contentfeed/state"
)

// DocumentsResponse is one page of a collection query
type DocumentsResponse struct {
	Records feed.Page `json:"records"`
}

type handlers struct {
	store       Store
	broadcaster *Broadcaster
	ping        time.Duration
}

func (h *handlers) collection(c *fiber.Ctx) state.Collection {
	return h.store.Collection(c.Params("collection"))
}

// parseQuery reads ?where=field,op,value (repeatable), orderBy, direction and limit
func parseQuery(c *fiber.Ctx) (query.Query, error) {
	q := query.New()
	for _, raw := range c.Context().QueryArgs().PeekMulti("where") {
		f, err := query.ParseFilter(string(raw))
		if err != nil {
			return query.Query{}, err
		}
		q = q.Where(f.Field, f.Op, f.Value)
	}

	if orderBy := c.Query("orderBy"); orderBy != "" {
		q.OrderBy = orderBy
	}
	dir, err := query.ParseDirection(c.Query("direction"))
	if err != nil {
		return query.Query{}, err
	}
	q.Direction = dir

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return query.Query{}, fmt.Errorf("%w: limit %q", query.ErrInvalidQuery, raw)
		}
		q.Limit = limit
	}
	return q, q.Validate()
}

// list runs a query given in the URL. startAfter names the cursor by id, so
// the cursor document must still exist.
func (h *handlers) list(c *fiber.Ctx) error {
	q, err := parseQuery(c)
	if err != nil {
		return err
	}
	coll := h.collection(c)

	var page feed.Page
	if after := c.Query("startAfter"); after != "" {
		cursor, err := coll.Get(c.UserContext(), after)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: cursor %s: %v", errBadRequest, after, err)
		}
		if err != nil {
			return err
		}
		page, err = coll.QueryAfter(c.UserContext(), q, cursor)
		if err != nil {
			return err
		}
	} else {
		page, err = coll.Query(c.UserContext(), q)
		if err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"collection": c.Params("collection"),
		"filters":    len(q.Filters),
		"limit":      q.Limit,
		"results":    len(page),
	}).Debug("Listed documents")

	return c.JSON(DocumentsResponse{Records: page})
}

// query runs a query given as a JSON body, carrying the full cursor record
func (h *handlers) query(c *fiber.Ctx) error {
	var req query.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := req.Query.Validate(); err != nil {
		return err
	}
	coll := h.collection(c)

	var page feed.Page
	var err error
	if req.StartAfter != nil {
		page, err = coll.QueryAfter(c.UserContext(), req.Query, *req.StartAfter)
	} else {
		page, err = coll.Query(c.UserContext(), req.Query)
	}
	if err != nil {
		return err
	}
	return c.JSON(DocumentsResponse{Records: page})
}

func (h *handlers) get(c *fiber.Ctx) error {
	record, err := h.collection(c).Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *handlers) set(c *fiber.Ctx) error {
	var record models.Record
	if err := json.Unmarshal(c.Body(), &record); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	id := c.Params("id")
	if record.ID != "" && record.ID != id {
		return fmt.Errorf("%w: body id %q does not match %q", errBadRequest, record.ID, id)
	}
	record.ID = id

	if err := h.collection(c).Set(c.UserContext(), record); err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *handlers) update(c *fiber.Ctx) error {
	var fields map[string]any
	if err := json.Unmarshal(c.Body(), &fields); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	coll := h.collection(c)
	id := c.Params("id")

	if err := coll.Update(c.UserContext(), id, fields); err != nil {
		return err
	}
	record, err := coll.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *handlers) delete(c *fiber.Ctx) error {
	if err := h.collection(c).Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// changes streams the collection's change events as server-sent events
func (h *handlers) changes(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	collection := c.Params("collection")
	key := uuid.New().String()
	events := make(chan models.ChangeEvent, 16)
	h.broadcaster.AddClient(key, collection, events)

	ping := h.ping
	bc := h.broadcaster

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		alive := time.NewTicker(ping)
		defer alive.Stop()
		defer func() {
			log.Infof("Cleaning up SSE stream for client: %s", key)
			bc.RemoveClient(key)
		}()

		fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
		if err := w.Flush(); err != nil {
			log.Errorf("Failed to send init event: %v", err)
			return
		}

		for {
			select {
			case <-alive.C:
				if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
					log.Warnf("Failed to send ping to client %s: %v", key, err)
					return
				}
				if err := w.Flush(); err != nil {
					log.Warnf("Failed to flush ping for client %s: %v", key, err)
					return
				}

			case evt, ok := <-events:
				if !ok {
					log.Warnf("Change channel closed for client %s", key)
					return
				}
				data, err := json.Marshal(evt)
				if err != nil {
					log.Errorf("Error marshalling change event for client %s: %v", key, err)
					continue
				}
				if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", data); err != nil {
					log.Warnf("Failed to send change event to client %s: %v", key, err)
					return
				}
				if err := w.Flush(); err != nil {
					log.Warnf("Failed to flush change event for client %s: %v", key, err)
					return
				}
			}
		}
	}))

	return nil
}
