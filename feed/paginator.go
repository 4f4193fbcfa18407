package feed

import (
	"context"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"

	"contentfeed/models"
	"contentfeed/query"
)

// Store is the paged read side of a remote document collection
type Store interface {
	// Query returns up to q.Limit records matching q in q's ordering
	Query(ctx context.Context, q query.Query) (Page, error)
	// QueryAfter is Query resuming strictly after cursor's position
	QueryAfter(ctx context.Context, q query.Query, cursor models.Record) (Page, error)
}

// State of a paginated feed
type State int

const (
	StateEmpty State = iota
	StateLoading
	StatePopulated
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StatePopulated:
		return "populated"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Paginator owns one Feed for one query and drives it through the store.
// It allows a single fetch in flight and drops results that arrive after
// Reset or Close.
type Paginator struct {
	store Store

	mu         sync.Mutex
	query      query.Query
	feed       Feed
	state      State
	generation uint64
	closed     bool
}

// NewPaginator creates an empty feed for q. A positive pageSize overrides q.Limit.
func NewPaginator(store Store, q query.Query, pageSize int) *Paginator {
	if pageSize > 0 {
		q.Limit = pageSize
	}
	return &Paginator{store: store, query: q}
}

func (p *Paginator) Feed() Feed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feed
}

func (p *Paginator) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Paginator) Query() query.Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Reset swaps the query and empties the feed. A fetch still in flight for
// the previous query is discarded when it returns.
func (p *Paginator) Reset(q query.Query) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if q.Limit == 0 {
		q.Limit = p.query.Limit
	}
	p.query = q
	p.feed = Feed{}
	p.state = StateEmpty
	p.generation++
}

// Close abandons the feed. Later calls return ErrClosed.
func (p *Paginator) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.feed = Feed{}
	p.generation++
}

// Load fetches the first page and replaces the feed with it
func (p *Paginator) Load(ctx context.Context) (Feed, error) {
	return p.fetch(ctx, true)
}

// LoadMore fetches the page after the cursor and merges it. On an exhausted
// feed it returns the current feed without contacting the store.
func (p *Paginator) LoadMore(ctx context.Context) (Feed, error) {
	return p.fetch(ctx, false)
}

func (p *Paginator) fetch(ctx context.Context, first bool) (Feed, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Feed{}, ErrClosed
	}
	if p.state == StateLoading {
		current := p.feed
		p.mu.Unlock()
		return current, ErrFetchInFlight
	}
	if !first && p.state == StateExhausted {
		current := p.feed
		p.mu.Unlock()
		return current, nil
	}

	base := p.feed
	if first || base.Cursor == nil {
		first = true
		base = Feed{}
	}
	q := p.query
	generation := p.generation
	previous := p.state
	p.state = StateLoading
	p.mu.Unlock()

	kind := "more"
	var page Page
	var err error
	if first {
		kind = "first"
		page, err = p.store.Query(ctx, q)
	} else {
		page, err = p.store.QueryAfter(ctx, q, *base.Cursor)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || generation != p.generation {
		staleResults.Inc()
		if p.closed {
			return Feed{}, ErrClosed
		}
		return p.feed, ErrStale
	}

	if err != nil {
		p.state = previous
		fetchFailures.Inc()
		log.WithFields(log.Fields{
			"kind":  kind,
			"error": err,
		}).Error("Error fetching page")
		return p.feed, &FetchError{Err: err}
	}
	pagesFetched.WithLabelValues(kind).Inc()

	// pick up Replace and Remove calls made while the page was loading
	if !first {
		base = p.feed
	}
	merged, err := Merge(base, page)
	if err != nil {
		p.state = previous
		log.WithFields(log.Fields{
			"kind":  kind,
			"error": err,
		}).Error("Error merging page")
		return p.feed, err
	}

	p.feed = merged
	if q.Limit == 0 || len(page) < q.Limit {
		p.state = StateExhausted
	} else {
		p.state = StatePopulated
	}

	log.WithFields(log.Fields{
		"kind":    kind,
		"page":    len(page),
		"records": merged.Len(),
		"state":   p.state.String(),
	}).Debug("Merged page into feed")

	return merged, nil
}

// Replace swaps the feed record sharing r's id for r and restores the time
// ordering. Records not in the feed are ignored, the cursor is left alone.
func (p *Paginator) Replace(r models.Record) error {
	if _, err := NormalizeRecord(r); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := slices.IndexFunc(p.feed.Records, func(existing models.Record) bool { return existing.ID == r.ID })
	if idx < 0 {
		return nil
	}
	records := slices.Clone(p.feed.Records)
	records[idx] = r
	sorted, err := SortByTimeDesc(records)
	if err != nil {
		return err
	}
	p.feed = Feed{Records: sorted, Cursor: p.feed.Cursor}
	return nil
}

// Remove drops the record with the given id from the feed. The cursor keeps
// its position even when it points at the removed record.
func (p *Paginator) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !slices.ContainsFunc(p.feed.Records, func(r models.Record) bool { return r.ID == id }) {
		return
	}
	records := slices.DeleteFunc(slices.Clone(p.feed.Records), func(r models.Record) bool { return r.ID == id })
	p.feed = Feed{Records: records, Cursor: p.feed.Cursor}
}
