// Package memstore keeps document collections in memory. Payloads are held as
// raw JSON and filters are evaluated with gjson, so it answers the same
// queries as the SQLite store without a database file.
package memstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"contentfeed/feed"
	"contentfeed/models"
	"contentfeed/query"
)

type document struct {
	id        string
	createdAt *models.Timestamp
	raw       []byte
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]document
	listeners   []func(models.ChangeEvent)
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]document)}
}

// OnChange registers fn to be called after every successful write
func (s *Store) OnChange(fn func(models.ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(evt models.ChangeEvent) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(evt)
	}
}

func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, name: name}
}

// Collection is one named collection of the in-memory store
type Collection struct {
	store *Store
	name  string
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) Query(ctx context.Context, q query.Query) (feed.Page, error) {
	return c.query(ctx, q, nil)
}

func (c *Collection) QueryAfter(ctx context.Context, q query.Query, cursor models.Record) (feed.Page, error) {
	return c.query(ctx, q, &cursor)
}

func (c *Collection) query(ctx context.Context, q query.Query, cursor *models.Record) (feed.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var after *document
	if cursor != nil {
		if q.OrderBy == "" || q.OrderBy == query.CreatedAt {
			if _, err := feed.NormalizeRecord(*cursor); err != nil {
				return nil, fmt.Errorf("cursor: %w", err)
			}
		}
		doc, err := toDocument(*cursor)
		if err != nil {
			return nil, err
		}
		after = &doc
	}

	c.store.mu.RLock()
	var matched []document
	for _, doc := range c.store.collections[c.name] {
		if matchesAll(doc, q.Filters) {
			matched = append(matched, doc)
		}
	}
	c.store.mu.RUnlock()

	order := func(a, b document) int {
		r := compareDocuments(a, b, q.OrderBy)
		if q.Descending() {
			return -r
		}
		return r
	}
	slices.SortFunc(matched, order)

	if after != nil {
		start, _ := slices.BinarySearchFunc(matched, *after, func(doc, target document) int {
			// first document strictly after the cursor
			if order(doc, target) <= 0 {
				return -1
			}
			return 1
		})
		matched = matched[start:]
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	page := make(feed.Page, 0, len(matched))
	for _, doc := range matched {
		record, err := doc.record()
		if err != nil {
			return nil, err
		}
		page = append(page, record)
	}

	log.WithFields(log.Fields{
		"collection": c.name,
		"results":    len(page),
	}).Debug("Evaluated in-memory query")
	return page, nil
}

func (c *Collection) Get(ctx context.Context, id string) (models.Record, error) {
	c.store.mu.RLock()
	doc, ok := c.store.collections[c.name][id]
	c.store.mu.RUnlock()
	if !ok {
		return models.Record{}, fmt.Errorf("%s/%s: %w", c.name, id, models.ErrNotFound)
	}
	return doc.record()
}

// Set creates the document or replaces it entirely
func (c *Collection) Set(ctx context.Context, record models.Record) error {
	if record.ID == "" {
		return fmt.Errorf("%s: document id is required", c.name)
	}
	doc, err := toDocument(record)
	if err != nil {
		return err
	}

	c.store.mu.Lock()
	docs, ok := c.store.collections[c.name]
	if !ok {
		docs = make(map[string]document)
		c.store.collections[c.name] = docs
	}
	docs[record.ID] = doc
	c.store.mu.Unlock()

	stored, err := doc.record()
	if err != nil {
		return err
	}
	c.store.notify(models.ChangeEvent{Collection: c.name, Operation: models.ChangeSet, ID: record.ID, Record: &stored})
	return nil
}

// Update merges fields into the payload of an existing document
func (c *Collection) Update(ctx context.Context, id string, fields map[string]any) error {
	c.store.mu.Lock()
	doc, ok := c.store.collections[c.name][id]
	if !ok {
		c.store.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", c.name, id, models.ErrNotFound)
	}
	record, err := doc.record()
	if err != nil {
		c.store.mu.Unlock()
		return err
	}
	if record.Data == nil {
		record.Data = map[string]any{}
	}
	for k, v := range fields {
		if k == query.ID {
			continue
		}
		record.Data[k] = v
	}
	updated, err := toDocument(record)
	if err != nil {
		c.store.mu.Unlock()
		return err
	}
	c.store.collections[c.name][id] = updated
	c.store.mu.Unlock()

	c.store.notify(models.ChangeEvent{Collection: c.name, Operation: models.ChangeUpdate, ID: id, Record: &record})
	return nil
}

// Delete removes a document, deleting a missing id is not an error
func (c *Collection) Delete(ctx context.Context, id string) error {
	c.store.mu.Lock()
	_, ok := c.store.collections[c.name][id]
	delete(c.store.collections[c.name], id)
	c.store.mu.Unlock()

	if ok {
		c.store.notify(models.ChangeEvent{Collection: c.name, Operation: models.ChangeDelete, ID: id})
	}
	return nil
}

func toDocument(record models.Record) (document, error) {
	raw := []byte("{}")
	if record.Data != nil {
		var err error
		raw, err = json.Marshal(record.Data)
		if err != nil {
			return document{}, fmt.Errorf("encode document: %w", err)
		}
	}
	return document{id: record.ID, createdAt: cloneTimestamp(record.CreatedAt), raw: raw}, nil
}

func (d document) record() (models.Record, error) {
	record := models.Record{ID: d.id, CreatedAt: cloneTimestamp(d.createdAt)}
	if err := json.Unmarshal(d.raw, &record.Data); err != nil {
		return models.Record{}, fmt.Errorf("decode document %s: %w", d.id, err)
	}
	return record, nil
}

func cloneTimestamp(ts *models.Timestamp) *models.Timestamp {
	if ts == nil {
		return nil
	}
	out := &models.Timestamp{}
	if ts.Seconds != nil {
		s := *ts.Seconds
		out.Seconds = &s
	}
	if ts.Nanoseconds != nil {
		n := *ts.Nanoseconds
		out.Nanoseconds = &n
	}
	return out
}

func (d document) field(name string) gjson.Result {
	if name == query.ID {
		return gjson.Result{Type: gjson.String, Str: d.id}
	}
	return gjson.GetBytes(d.raw, name)
}

func matchesAll(doc document, filters []query.Filter) bool {
	for _, f := range filters {
		if !matches(doc.field(f.Field), f) {
			return false
		}
	}
	return true
}

func matches(res gjson.Result, f query.Filter) bool {
	if f.Value == nil {
		switch f.Op {
		case query.Equal:
			return !res.Exists() || res.Type == gjson.Null
		case query.NotEqual:
			return res.Exists() && res.Type != gjson.Null
		default:
			return false
		}
	}
	if !res.Exists() || res.Type == gjson.Null {
		return false
	}

	c, comparable := compareValue(res, f.Value)
	if !comparable {
		return f.Op == query.NotEqual
	}
	switch f.Op {
	case query.Equal:
		return c == 0
	case query.NotEqual:
		return c != 0
	case query.LessThan:
		return c < 0
	case query.LessEqual:
		return c <= 0
	case query.GreaterThan:
		return c > 0
	case query.GreaterEqual:
		return c >= 0
	}
	return false
}

// compareValue compares a payload value with a filter value. Booleans compare
// as 0 and 1, the way SQLite sees JSON booleans.
func compareValue(res gjson.Result, v any) (int, bool) {
	switch v := v.(type) {
	case string:
		if res.Type != gjson.String {
			return 0, false
		}
		return strings.Compare(res.Str, v), true
	case bool:
		n := 0.0
		if v {
			n = 1
		}
		return compareNumber(res, n)
	case float64:
		return compareNumber(res, v)
	case float32:
		return compareNumber(res, float64(v))
	case int:
		return compareNumber(res, float64(v))
	case int64:
		return compareNumber(res, float64(v))
	case int32:
		return compareNumber(res, float64(v))
	}
	return 0, false
}

func compareNumber(res gjson.Result, n float64) (int, bool) {
	switch res.Type {
	case gjson.Number, gjson.True, gjson.False:
		return cmp.Compare(res.Float(), n), true
	}
	return 0, false
}

// typeRank orders values of different types: missing, numbers, strings, objects
func typeRank(res gjson.Result) int {
	switch res.Type {
	case gjson.Null:
		return 0
	case gjson.Number, gjson.True, gjson.False:
		return 1
	case gjson.String:
		return 2
	default:
		return 3
	}
}

func compareResults(a, b gjson.Result) int {
	if r := cmp.Compare(typeRank(a), typeRank(b)); r != 0 {
		return r
	}
	switch typeRank(a) {
	case 1:
		return cmp.Compare(a.Float(), b.Float())
	case 2:
		return strings.Compare(a.Str, b.Str)
	case 3:
		return strings.Compare(a.Raw, b.Raw)
	}
	return 0
}

// compareNullable orders absent values before any present value
func compareNullable(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(*a, *b)
}

// compareDocuments gives the ascending ordering for orderBy, ties broken by id
func compareDocuments(a, b document, orderBy string) int {
	switch orderBy {
	case "", query.CreatedAt:
		var as, an, bs, bn *float64
		if a.createdAt != nil {
			as, an = a.createdAt.Seconds, a.createdAt.Nanoseconds
		}
		if b.createdAt != nil {
			bs, bn = b.createdAt.Seconds, b.createdAt.Nanoseconds
		}
		if r := compareNullable(as, bs); r != 0 {
			return r
		}
		if r := compareNullable(an, bn); r != 0 {
			return r
		}
	case query.ID:
	default:
		if r := compareResults(a.field(orderBy), b.field(orderBy)); r != 0 {
			return r
		}
	}
	return strings.Compare(a.id, b.id)
}
