// Package state holds the client-side view of users, channels and content.
// Each view is a Container: one state value changed only by dispatching
// events through a pure reducer.
package state

import (
	"context"
	"sync"

	"contentfeed/feed"
	"contentfeed/models"
)

// Collection is everything the services need from a document collection:
// paged reads for feeds plus single document CRUD.
type Collection interface {
	feed.Store
	Name() string
	Get(ctx context.Context, id string) (models.Record, error)
	Set(ctx context.Context, record models.Record) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

// Reducer computes the next state. It must not modify its input.
type Reducer[S, E any] func(S, E) S

type Container[S, E any] struct {
	mu          sync.Mutex
	state       S
	reduce      Reducer[S, E]
	subscribers map[int]func(S)
	nextID      int
}

func NewContainer[S, E any](initial S, reduce Reducer[S, E]) *Container[S, E] {
	return &Container[S, E]{
		state:       initial,
		reduce:      reduce,
		subscribers: make(map[int]func(S)),
	}
}

func (c *Container[S, E]) State() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dispatch applies evt and hands the new state to every subscriber
func (c *Container[S, E]) Dispatch(evt E) S {
	c.mu.Lock()
	c.state = c.reduce(c.state, evt)
	next := c.state
	subscribers := make([]func(S), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(next)
	}
	return next
}

// Subscribe registers fn for state changes, the returned func removes it
func (c *Container[S, E]) Subscribe(fn func(S)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}
