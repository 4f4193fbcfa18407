package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"contentfeed/feed"
	"contentfeed/language"
	"contentfeed/models"
	"contentfeed/query"
)

// ContentPageSize is how many content items one feed page holds
const ContentPageSize = 9

// ErrNoChannelFeed is returned when more channel content is requested before
// any channel was loaded
var ErrNoChannelFeed = errors.New("no channel content loaded")

// Scope decides which content of a channel is visible
type Scope string

const (
	// ScopeOwner shows everything in the channel, drafts and private items included
	ScopeOwner Scope = "owner"
	// ScopePublic shows published public items only
	ScopePublic Scope = "public"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(s)) {
	case ScopeOwner:
		return ScopeOwner, nil
	case ScopePublic, "":
		return ScopePublic, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

type ContentState struct {
	Loading          bool
	CurrentContent   *models.Content
	PublicContent    []models.Content
	PublicExhausted  bool
	ChannelID        string
	ChannelContent   []models.Content
	ChannelExhausted bool
}

// ContentEvent is one of the Content* event types below
type ContentEvent interface {
	contentEvent()
}

type (
	ContentLoading      struct{ Loading bool }
	ContentAdded        struct{ Content models.Content }
	ContentFetched      struct{ Content *models.Content }
	ContentEdited       struct{ Content models.Content }
	ContentDeleted      struct{ ID string }
	PublicContentLoaded struct {
		Contents  []models.Content
		Exhausted bool
	}
	ChannelContentLoaded struct {
		ChannelID string
		Contents  []models.Content
		Exhausted bool
	}
)

func (ContentLoading) contentEvent()       {}
func (ContentAdded) contentEvent()         {}
func (ContentFetched) contentEvent()       {}
func (ContentEdited) contentEvent()        {}
func (ContentDeleted) contentEvent()       {}
func (PublicContentLoaded) contentEvent()  {}
func (ChannelContentLoaded) contentEvent() {}

func contentID(c models.Content) string { return c.ID }

func ReduceContent(s ContentState, e ContentEvent) ContentState {
	switch e := e.(type) {
	case ContentLoading:
		s.Loading = e.Loading
	case ContentAdded:
		c := e.Content
		s.CurrentContent = &c
	case ContentFetched:
		if e.Content == nil {
			s.CurrentContent = nil
			break
		}
		c := *e.Content
		s.CurrentContent = &c
	case ContentEdited:
		c := e.Content
		if s.CurrentContent != nil && s.CurrentContent.ID == c.ID {
			s.CurrentContent = &c
		}
		s.PublicContent = replaceByID(s.PublicContent, c, contentID)
		s.ChannelContent = replaceByID(s.ChannelContent, c, contentID)
	case ContentDeleted:
		if s.CurrentContent != nil && s.CurrentContent.ID == e.ID {
			s.CurrentContent = nil
		}
		s.PublicContent = removeByID(s.PublicContent, e.ID, contentID)
		s.ChannelContent = removeByID(s.ChannelContent, e.ID, contentID)
	case PublicContentLoaded:
		s.PublicContent = slices.Clone(e.Contents)
		s.PublicExhausted = e.Exhausted
	case ChannelContentLoaded:
		s.ChannelID = e.ChannelID
		s.ChannelContent = slices.Clone(e.Contents)
		s.ChannelExhausted = e.Exhausted
	}
	return s
}

// ContentService manages the contents collection and the two content feeds:
// all public content, and the content of one channel.
type ContentService struct {
	contents Collection
	detector *language.Detector
	state    *Container[ContentState, ContentEvent]
	public   *feed.Paginator

	mu        sync.Mutex
	channel   *feed.Paginator
	channelID string
}

// NewContentService creates the service, detector may be nil to skip
// language tagging
func NewContentService(contents Collection, detector *language.Detector) *ContentService {
	return &ContentService{
		contents: contents,
		detector: detector,
		state:    NewContainer(ContentState{}, ReduceContent),
		public:   feed.NewPaginator(contents, PublicContentQuery(), ContentPageSize),
	}
}

// PublicContentQuery selects published public content, most recent first
func PublicContentQuery() query.Query {
	return query.New().
		Where("public", query.Equal, true).
		Where("draft", query.Equal, false)
}

// ChannelContentQuery selects the content of one channel visible in scope
func ChannelContentQuery(channelID string, scope Scope) query.Query {
	q := query.New().Where("channelId", query.Equal, channelID)
	if scope == ScopePublic {
		q = q.Where("public", query.Equal, true).Where("draft", query.Equal, false)
	}
	return q
}

func (s *ContentService) State() *Container[ContentState, ContentEvent] {
	return s.state
}

// Close stops both feeds, pages still in flight are dropped
func (s *ContentService) Close() {
	s.public.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		s.channel.Close()
	}
}

func (s *ContentService) loading() func() {
	s.state.Dispatch(ContentLoading{Loading: true})
	return func() { s.state.Dispatch(ContentLoading{Loading: false}) }
}

// GetAllPublic loads the first page of public content
func (s *ContentService) GetAllPublic(ctx context.Context) ([]models.Content, error) {
	defer s.loading()()

	f, err := s.public.Load(ctx)
	return s.publicLoaded(f, err)
}

// GetMorePublic appends the next page of public content
func (s *ContentService) GetMorePublic(ctx context.Context) ([]models.Content, error) {
	f, err := s.public.LoadMore(ctx)
	return s.publicLoaded(f, err)
}

func (s *ContentService) publicLoaded(f feed.Feed, err error) ([]models.Content, error) {
	if err != nil {
		log.WithError(err).Error("Error loading public content")
		return nil, err
	}
	contents, err := models.ContentsFromRecords(f.Records)
	if err != nil {
		log.WithError(err).Error("Error decoding public content")
		return nil, err
	}
	s.state.Dispatch(PublicContentLoaded{
		Contents:  contents,
		Exhausted: s.public.State() == feed.StateExhausted,
	})
	return contents, nil
}

// GetAllByChannel switches the channel feed to channelID and loads its first
// page. A page still loading for the previous channel is discarded.
func (s *ContentService) GetAllByChannel(ctx context.Context, channelID string, scope Scope) ([]models.Content, error) {
	defer s.loading()()

	q := ChannelContentQuery(channelID, scope)
	s.mu.Lock()
	if s.channel == nil {
		s.channel = feed.NewPaginator(s.contents, q, ContentPageSize)
	} else {
		s.channel.Reset(q)
	}
	s.channelID = channelID
	p := s.channel
	s.mu.Unlock()

	f, err := p.Load(ctx)
	return s.channelLoaded(p, channelID, f, err)
}

// GetMoreChannel appends the next page of the channel loaded last
func (s *ContentService) GetMoreChannel(ctx context.Context) ([]models.Content, error) {
	s.mu.Lock()
	p, channelID := s.channel, s.channelID
	s.mu.Unlock()
	if p == nil {
		return nil, ErrNoChannelFeed
	}

	f, err := p.LoadMore(ctx)
	return s.channelLoaded(p, channelID, f, err)
}

func (s *ContentService) channelLoaded(p *feed.Paginator, channelID string, f feed.Feed, err error) ([]models.Content, error) {
	if err != nil {
		log.WithFields(log.Fields{"channelId": channelID, "error": err}).Error("Error loading channel content")
		return nil, err
	}
	contents, err := models.ContentsFromRecords(f.Records)
	if err != nil {
		log.WithFields(log.Fields{"channelId": channelID, "error": err}).Error("Error decoding channel content")
		return nil, err
	}
	s.state.Dispatch(ChannelContentLoaded{
		ChannelID: channelID,
		Contents:  contents,
		Exhausted: p.State() == feed.StateExhausted,
	})
	return contents, nil
}

// Add stores c under a fresh id, stamps its creation time and tags its
// language when the detector recognises it
func (s *ContentService) Add(ctx context.Context, c models.Content) (models.Content, error) {
	defer s.loading()()

	c.ID = uuid.NewString()
	c.CreatedAt = models.TimestampFromTime(time.Now())
	if c.Language == "" {
		c.Language = s.detector.Detect(c.Title + "\n" + c.Body)
	}

	record, err := c.ToRecord()
	if err != nil {
		return models.Content{}, err
	}
	if err := s.contents.Set(ctx, record); err != nil {
		log.WithFields(log.Fields{"collection": s.contents.Name(), "channelId": c.ChannelID, "error": err}).Error("Error adding content")
		return models.Content{}, err
	}

	log.WithFields(log.Fields{
		"id":        c.ID,
		"channelId": c.ChannelID,
		"language":  c.Language,
	}).Info("Added content")

	s.state.Dispatch(ContentAdded{Content: c})
	return c, nil
}

func (s *ContentService) GetByID(ctx context.Context, id string) (models.Content, error) {
	defer s.loading()()

	record, err := s.contents.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.state.Dispatch(ContentFetched{})
		}
		log.WithFields(log.Fields{"id": id, "error": err}).Error("Error getting content")
		return models.Content{}, err
	}
	c, err := models.ContentFromRecord(record)
	if err != nil {
		return models.Content{}, err
	}
	s.state.Dispatch(ContentFetched{Content: &c})
	return c, nil
}

// GetByKey loads the most recent content published under key
func (s *ContentService) GetByKey(ctx context.Context, key string) (models.Content, error) {
	defer s.loading()()

	page, err := s.contents.Query(ctx, query.New().Where("key", query.Equal, key).WithLimit(1))
	if err != nil {
		log.WithFields(log.Fields{"key": key, "error": err}).Error("Error getting content by key")
		return models.Content{}, err
	}
	if len(page) == 0 {
		s.state.Dispatch(ContentFetched{})
		return models.Content{}, fmt.Errorf("content with key %q: %w", key, models.ErrNotFound)
	}
	c, err := models.ContentFromRecord(page[0])
	if err != nil {
		return models.Content{}, err
	}
	s.state.Dispatch(ContentFetched{Content: &c})
	return c, nil
}

// Edit writes the editable fields of c, the language is detected again
// unless c carries one. Loaded feeds show the stored result.
func (s *ContentService) Edit(ctx context.Context, c models.Content) (models.Content, error) {
	if c.Language == "" {
		c.Language = s.detector.Detect(c.Title + "\n" + c.Body)
	}
	fields := map[string]any{
		"key":      c.Key,
		"title":    c.Title,
		"body":     c.Body,
		"public":   c.Public,
		"draft":    c.Draft,
		"language": c.Language,
	}
	if err := s.contents.Update(ctx, c.ID, fields); err != nil {
		log.WithFields(log.Fields{"id": c.ID, "error": err}).Error("Error editing content")
		return models.Content{}, err
	}

	record, err := s.contents.Get(ctx, c.ID)
	if err != nil {
		log.WithFields(log.Fields{"id": c.ID, "error": err}).Error("Error reading edited content")
		return models.Content{}, err
	}
	edited, err := models.ContentFromRecord(record)
	if err != nil {
		return models.Content{}, err
	}
	s.state.Dispatch(ContentEdited{Content: edited})
	s.refreshFeeds(func(p *feed.Paginator) {
		if !matchesEqualities(p.Query(), record) {
			p.Remove(record.ID)
			return
		}
		if err := p.Replace(record); err != nil {
			log.WithFields(log.Fields{"id": record.ID, "error": err}).Warn("Edited content left out of feed")
			p.Remove(record.ID)
		}
	})
	return edited, nil
}

func (s *ContentService) Delete(ctx context.Context, id string) error {
	if err := s.contents.Delete(ctx, id); err != nil {
		log.WithFields(log.Fields{"id": id, "error": err}).Error("Error deleting content")
		return err
	}
	s.state.Dispatch(ContentDeleted{ID: id})
	s.refreshFeeds(func(p *feed.Paginator) { p.Remove(id) })
	return nil
}

// refreshFeeds applies fn to every loaded feed and publishes the result
func (s *ContentService) refreshFeeds(fn func(*feed.Paginator)) {
	fn(s.public)
	if s.public.State() != feed.StateEmpty {
		_, _ = s.publicLoaded(s.public.Feed(), nil)
	}

	s.mu.Lock()
	p, channelID := s.channel, s.channelID
	s.mu.Unlock()
	if p == nil {
		return
	}
	fn(p)
	if p.State() != feed.StateEmpty {
		_, _ = s.channelLoaded(p, channelID, p.Feed(), nil)
	}
}

// matchesEqualities reports whether r passes every equality filter of q.
// Range filters are not checked.
func matchesEqualities(q query.Query, r models.Record) bool {
	for _, f := range q.Filters {
		if f.Op != query.Equal {
			continue
		}
		var value any
		if f.Field == query.ID {
			value = r.ID
		} else {
			value = r.Data[f.Field]
		}
		if !looselyEqual(value, f.Value) {
			return false
		}
	}
	return true
}

func looselyEqual(a, b any) bool {
	switch b := b.(type) {
	case int:
		return looselyEqual(a, float64(b))
	case int64:
		return looselyEqual(a, float64(b))
	}
	if n, ok := a.(int); ok {
		a = float64(n)
	}
	return a == b
}

// KeyExistsInChannel reports whether channelID already has content under key
func (s *ContentService) KeyExistsInChannel(ctx context.Context, key, channelID string) (bool, error) {
	q := query.New().
		Where("key", query.Equal, key).
		Where("channelId", query.Equal, channelID).
		WithLimit(1)
	page, err := s.contents.Query(ctx, q)
	if err != nil {
		log.WithFields(log.Fields{"key": key, "channelId": channelID, "error": err}).Error("Error checking content key")
		return false, err
	}
	return len(page) > 0, nil
}
