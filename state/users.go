package state

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"contentfeed/models"
	"contentfeed/query"
)

type UsersState struct {
	Loading     bool
	CurrentUser *models.User
	Users       []models.User
}

// UserEvent is one of the User* event types below
type UserEvent interface {
	userEvent()
}

type (
	UserLoading   struct{ Loading bool }
	UsersLoaded   struct{ Users []models.User }
	UserAdded     struct{ User models.User }
	UserFetched   struct{ User models.User }
	UserEdited    struct{ User models.User }
	UserDeleted   struct{}
	UserLoggedOut struct{}
)

func (UserLoading) userEvent()   {}
func (UsersLoaded) userEvent()   {}
func (UserAdded) userEvent()     {}
func (UserFetched) userEvent()   {}
func (UserEdited) userEvent()    {}
func (UserDeleted) userEvent()   {}
func (UserLoggedOut) userEvent() {}

func ReduceUsers(s UsersState, e UserEvent) UsersState {
	switch e := e.(type) {
	case UserLoading:
		s.Loading = e.Loading
	case UsersLoaded:
		s.Users = slices.Clone(e.Users)
	case UserAdded:
		u := e.User
		s.CurrentUser = &u
	case UserFetched:
		u := e.User
		s.CurrentUser = &u
	case UserEdited:
		u := e.User
		s.CurrentUser = &u
		s.Users = replaceByID(s.Users, u, func(u models.User) string { return u.ID })
	case UserDeleted, UserLoggedOut:
		s.CurrentUser = nil
	}
	return s
}

// UserService reads and writes the users collection and keeps UsersState
// in step with it
type UserService struct {
	users Collection
	state *Container[UsersState, UserEvent]
}

func NewUserService(users Collection) *UserService {
	return &UserService{
		users: users,
		state: NewContainer(UsersState{}, ReduceUsers),
	}
}

func (s *UserService) State() *Container[UsersState, UserEvent] {
	return s.state
}

func (s *UserService) loading() func() {
	s.state.Dispatch(UserLoading{Loading: true})
	return func() { s.state.Dispatch(UserLoading{Loading: false}) }
}

func (s *UserService) GetAll(ctx context.Context) ([]models.User, error) {
	defer s.loading()()

	page, err := s.users.Query(ctx, query.New())
	if err != nil {
		log.WithError(err).Error("Error getting users")
		return nil, err
	}
	users, err := models.UsersFromRecords(page)
	if err != nil {
		log.WithError(err).Error("Error decoding users")
		return nil, err
	}
	s.state.Dispatch(UsersLoaded{Users: users})
	return users, nil
}

// Add stores u under its own id and makes it the current user
func (s *UserService) Add(ctx context.Context, u models.User) (models.User, error) {
	defer s.loading()()

	u, err := s.save(ctx, u)
	if err != nil {
		return models.User{}, err
	}
	s.state.Dispatch(UserAdded{User: u})
	return u, nil
}

// GetOrCreate loads the user with u's id, storing u first if it does not exist
func (s *UserService) GetOrCreate(ctx context.Context, u models.User) (models.User, error) {
	defer s.loading()()

	record, err := s.users.Get(ctx, u.ID)
	switch {
	case err == nil:
		existing, err := models.UserFromRecord(record)
		if err != nil {
			return models.User{}, err
		}
		s.state.Dispatch(UserFetched{User: existing})
		return existing, nil
	case errors.Is(err, models.ErrNotFound):
		created, err := s.save(ctx, u)
		if err != nil {
			return models.User{}, err
		}
		s.state.Dispatch(UserAdded{User: created})
		s.state.Dispatch(UserFetched{User: created})
		return created, nil
	default:
		log.WithFields(log.Fields{"id": u.ID, "error": err}).Error("Error getting user")
		return models.User{}, err
	}
}

// Edit writes the profile fields of u and makes the stored user the current
// user
func (s *UserService) Edit(ctx context.Context, u models.User) (models.User, error) {
	fields := map[string]any{
		"name":     u.Name,
		"email":    u.Email,
		"photoURL": u.PhotoURL,
	}
	if err := s.users.Update(ctx, u.ID, fields); err != nil {
		log.WithFields(log.Fields{"collection": s.users.Name(), "id": u.ID, "error": err}).Error("Error editing user")
		return models.User{}, err
	}
	record, err := s.users.Get(ctx, u.ID)
	if err != nil {
		log.WithFields(log.Fields{"id": u.ID, "error": err}).Error("Error getting user")
		return models.User{}, err
	}
	edited, err := models.UserFromRecord(record)
	if err != nil {
		return models.User{}, err
	}
	s.state.Dispatch(UserEdited{User: edited})
	return edited, nil
}

func (s *UserService) LogOut() {
	s.state.Dispatch(UserLoggedOut{})
}

func (s *UserService) save(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		return models.User{}, errors.New("user id is required")
	}
	if !u.CreatedAt.Valid() {
		u.CreatedAt = models.TimestampFromTime(time.Now())
	}
	record, err := u.ToRecord()
	if err != nil {
		return models.User{}, err
	}
	if err := s.users.Set(ctx, record); err != nil {
		log.WithFields(log.Fields{"collection": s.users.Name(), "id": u.ID, "error": err}).Error("Error saving user")
		return models.User{}, err
	}
	return u, nil
}

// replaceByID returns a copy of items with the element sharing item's id
// swapped for item
func replaceByID[T any](items []T, item T, id func(T) string) []T {
	if items == nil {
		return nil
	}
	return lo.Map(items, func(v T, _ int) T {
		if id(v) == id(item) {
			return item
		}
		return v
	})
}

// removeByID returns a copy of items without the element with the given id
func removeByID[T any](items []T, target string, id func(T) string) []T {
	if items == nil {
		return nil
	}
	return lo.Reject(items, func(v T, _ int) bool { return id(v) == target })
}
