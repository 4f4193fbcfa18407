package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"contentfeed/feed"
	"contentfeed/models"
	"contentfeed/query"
)

// PublicChannelsPageSize is how many public channels one page holds
const PublicChannelsPageSize = 12

type ChannelsState struct {
	Loading        bool
	CurrentChannel *models.Channel
	Channels       []models.Channel
	Exhausted      bool
}

// ChannelEvent is one of the Channel* event types below
type ChannelEvent interface {
	channelEvent()
}

type (
	ChannelLoading       struct{ Loading bool }
	PublicChannelsLoaded struct {
		Channels  []models.Channel
		Exhausted bool
	}
	ChannelAdded           struct{ Channel models.Channel }
	ChannelFetched         struct{ Channel *models.Channel }
	ChannelEdited          struct{ Channel models.Channel }
	ChannelContentsUpdated struct {
		ID       string
		Contents []string
	}
	ChannelDeleted struct{ ID string }
)

func (ChannelLoading) channelEvent()         {}
func (PublicChannelsLoaded) channelEvent()   {}
func (ChannelAdded) channelEvent()           {}
func (ChannelFetched) channelEvent()         {}
func (ChannelEdited) channelEvent()          {}
func (ChannelContentsUpdated) channelEvent() {}
func (ChannelDeleted) channelEvent()         {}

func channelID(c models.Channel) string { return c.ID }

func ReduceChannels(s ChannelsState, e ChannelEvent) ChannelsState {
	switch e := e.(type) {
	case ChannelLoading:
		s.Loading = e.Loading
	case PublicChannelsLoaded:
		s.Channels = slices.Clone(e.Channels)
		s.Exhausted = e.Exhausted
	case ChannelAdded:
		c := e.Channel
		s.CurrentChannel = &c
	case ChannelFetched:
		if e.Channel == nil {
			s.CurrentChannel = nil
			break
		}
		c := *e.Channel
		s.CurrentChannel = &c
	case ChannelEdited:
		c := e.Channel
		s.CurrentChannel = &c
		s.Channels = replaceByID(s.Channels, c, channelID)
	case ChannelContentsUpdated:
		if s.CurrentChannel != nil && s.CurrentChannel.ID == e.ID {
			c := *s.CurrentChannel
			c.Contents = slices.Clone(e.Contents)
			s.CurrentChannel = &c
		}
	case ChannelDeleted:
		if s.CurrentChannel != nil && s.CurrentChannel.ID == e.ID {
			s.CurrentChannel = nil
		}
		s.Channels = removeByID(s.Channels, e.ID, channelID)
	}
	return s
}

// ChannelService manages the channels collection. A channel document is
// keyed by the id of the user owning it.
type ChannelService struct {
	channels Collection
	state    *Container[ChannelsState, ChannelEvent]
	public   *feed.Paginator
}

func NewChannelService(channels Collection) *ChannelService {
	return &ChannelService{
		channels: channels,
		state:    NewContainer(ChannelsState{}, ReduceChannels),
		public:   feed.NewPaginator(channels, PublicChannelsQuery(), PublicChannelsPageSize),
	}
}

// PublicChannelsQuery selects public channels, most recent first
func PublicChannelsQuery() query.Query {
	return query.New().Where("public", query.Equal, true)
}

func (s *ChannelService) State() *Container[ChannelsState, ChannelEvent] {
	return s.state
}

// Close stops the public channel feed, pages still in flight are dropped
func (s *ChannelService) Close() {
	s.public.Close()
}

func (s *ChannelService) loading() func() {
	s.state.Dispatch(ChannelLoading{Loading: true})
	return func() { s.state.Dispatch(ChannelLoading{Loading: false}) }
}

// GetAllPublic loads the first page of public channels
func (s *ChannelService) GetAllPublic(ctx context.Context) ([]models.Channel, error) {
	defer s.loading()()
	return s.loadPublic(ctx, s.public.Load)
}

// GetMorePublic appends the next page of public channels
func (s *ChannelService) GetMorePublic(ctx context.Context) ([]models.Channel, error) {
	return s.loadPublic(ctx, s.public.LoadMore)
}

func (s *ChannelService) loadPublic(ctx context.Context, load func(context.Context) (feed.Feed, error)) ([]models.Channel, error) {
	f, err := load(ctx)
	if err != nil {
		log.WithError(err).Error("Error loading public channels")
		return nil, err
	}
	channels, err := models.ChannelsFromRecords(f.Records)
	if err != nil {
		log.WithError(err).Error("Error decoding public channels")
		return nil, err
	}
	s.state.Dispatch(PublicChannelsLoaded{
		Channels:  channels,
		Exhausted: s.public.State() == feed.StateExhausted,
	})
	return channels, nil
}

// Add stores c under its owner's user id and makes it the current channel
func (s *ChannelService) Add(ctx context.Context, c models.Channel) (models.Channel, error) {
	defer s.loading()()

	c, err := s.save(ctx, c)
	if err != nil {
		return models.Channel{}, err
	}
	s.state.Dispatch(ChannelAdded{Channel: c})
	return c, nil
}

// GetOrCreate loads the channel of c.UserID, storing c first if the user
// has none yet
func (s *ChannelService) GetOrCreate(ctx context.Context, c models.Channel) (models.Channel, error) {
	defer s.loading()()

	record, err := s.channels.Get(ctx, c.UserID)
	switch {
	case err == nil:
		existing, err := models.ChannelFromRecord(record)
		if err != nil {
			return models.Channel{}, err
		}
		s.state.Dispatch(ChannelFetched{Channel: &existing})
		return existing, nil
	case errors.Is(err, models.ErrNotFound):
		created, err := s.save(ctx, c)
		if err != nil {
			return models.Channel{}, err
		}
		s.state.Dispatch(ChannelAdded{Channel: created})
		s.state.Dispatch(ChannelFetched{Channel: &created})
		return created, nil
	default:
		log.WithFields(log.Fields{"userId": c.UserID, "error": err}).Error("Error getting channel")
		return models.Channel{}, err
	}
}

func (s *ChannelService) GetByID(ctx context.Context, id string) (models.Channel, error) {
	defer s.loading()()

	record, err := s.channels.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.state.Dispatch(ChannelFetched{})
		}
		log.WithFields(log.Fields{"id": id, "error": err}).Error("Error getting channel")
		return models.Channel{}, err
	}
	c, err := models.ChannelFromRecord(record)
	if err != nil {
		return models.Channel{}, err
	}
	s.state.Dispatch(ChannelFetched{Channel: &c})
	return c, nil
}

// GetByKey loads the channel published under key
func (s *ChannelService) GetByKey(ctx context.Context, key string) (models.Channel, error) {
	defer s.loading()()

	page, err := s.channels.Query(ctx, query.New().Where("key", query.Equal, key).WithLimit(1))
	if err != nil {
		log.WithFields(log.Fields{"key": key, "error": err}).Error("Error getting channel by key")
		return models.Channel{}, err
	}
	if len(page) == 0 {
		s.state.Dispatch(ChannelFetched{})
		return models.Channel{}, fmt.Errorf("channel with key %q: %w", key, models.ErrNotFound)
	}
	c, err := models.ChannelFromRecord(page[0])
	if err != nil {
		return models.Channel{}, err
	}
	s.state.Dispatch(ChannelFetched{Channel: &c})
	return c, nil
}

// Edit writes every channel field except the contents list
func (s *ChannelService) Edit(ctx context.Context, c models.Channel) (models.Channel, error) {
	fields := map[string]any{
		"key":         c.Key,
		"name":        c.Name,
		"description": c.Description,
		"public":      c.Public,
	}
	if err := s.channels.Update(ctx, c.ID, fields); err != nil {
		log.WithFields(log.Fields{"collection": s.channels.Name(), "id": c.ID, "error": err}).Error("Error editing channel")
		return models.Channel{}, err
	}
	edited, err := s.refresh(ctx, c.ID)
	if err != nil {
		return models.Channel{}, err
	}
	s.state.Dispatch(ChannelEdited{Channel: edited})
	return edited, nil
}

// UpdateContents replaces the ordered content id list of a channel
func (s *ChannelService) UpdateContents(ctx context.Context, id string, contents []string) error {
	defer s.loading()()

	if contents == nil {
		contents = []string{}
	}
	if err := s.channels.Update(ctx, id, map[string]any{"contents": contents}); err != nil {
		log.WithFields(log.Fields{"id": id, "error": err}).Error("Error updating channel contents")
		return err
	}
	if _, err := s.refresh(ctx, id); err != nil {
		return err
	}
	s.state.Dispatch(ChannelContentsUpdated{ID: id, Contents: contents})
	return nil
}

func (s *ChannelService) Delete(ctx context.Context, id string) error {
	defer s.loading()()

	if err := s.channels.Delete(ctx, id); err != nil {
		log.WithFields(log.Fields{"id": id, "error": err}).Error("Error deleting channel")
		return err
	}
	s.public.Remove(id)
	s.state.Dispatch(ChannelDeleted{ID: id})
	return nil
}

// refresh rereads a channel after a write and updates the public feed with it
func (s *ChannelService) refresh(ctx context.Context, id string) (models.Channel, error) {
	record, err := s.channels.Get(ctx, id)
	if err != nil {
		log.WithFields(log.Fields{"id": id, "error": err}).Error("Error reading channel")
		return models.Channel{}, err
	}
	c, err := models.ChannelFromRecord(record)
	if err != nil {
		return models.Channel{}, err
	}
	if !c.Public {
		s.public.Remove(id)
	} else if err := s.public.Replace(record); err != nil {
		log.WithFields(log.Fields{"id": id, "error": err}).Warn("Channel left out of feed")
		s.public.Remove(id)
	}
	return c, nil
}

// KeyExistsInOtherChannels reports whether a channel not owned by userID
// already uses key
func (s *ChannelService) KeyExistsInOtherChannels(ctx context.Context, key, userID string) (bool, error) {
	page, err := s.channels.Query(ctx, query.New().Where("key", query.Equal, key))
	if err != nil {
		log.WithFields(log.Fields{"key": key, "error": err}).Error("Error checking channel key")
		return false, err
	}
	return lo.ContainsBy(page, func(r models.Record) bool { return r.ID != userID }), nil
}

func (s *ChannelService) save(ctx context.Context, c models.Channel) (models.Channel, error) {
	if c.UserID == "" {
		return models.Channel{}, errors.New("channel user id is required")
	}
	c.ID = c.UserID
	if !c.CreatedAt.Valid() {
		c.CreatedAt = models.TimestampFromTime(time.Now())
	}
	record, err := c.ToRecord()
	if err != nil {
		return models.Channel{}, err
	}
	if err := s.channels.Set(ctx, record); err != nil {
		log.WithFields(log.Fields{"userId": c.UserID, "error": err}).Error("Error saving channel")
		return models.Channel{}, err
	}
	return c, nil
}
