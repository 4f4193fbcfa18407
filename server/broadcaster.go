package server

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"contentfeed/models"
)

type changeClient struct {
	collection string
	events     chan models.ChangeEvent
}

// Broadcaster fans document change events out to the connected SSE clients
type Broadcaster struct {
	sync.RWMutex
	clients map[string]changeClient
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]changeClient),
	}
}

// Broadcast hands evt to every client following its collection. Clients
// that are not keeping up miss the event.
func (b *Broadcaster) Broadcast(evt models.ChangeEvent) {
	b.RLock()
	defer b.RUnlock()

	for key, client := range b.clients {
		if client.collection != evt.Collection {
			continue
		}
		select {
		case client.events <- evt:
		default:
			droppedEvents.Inc()
			log.Warnf("Client channel full, skipping change event for client: %v", key)
		}
	}
}

// AddClient registers a client for the changes of one collection
func (b *Broadcaster) AddClient(key, collection string, events chan models.ChangeEvent) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = changeClient{collection: collection, events: events}
	sseClients.Set(float64(len(b.clients)))
	log.WithFields(log.Fields{
		"key":        key,
		"collection": collection,
		"count":      len(b.clients),
	}).Info("Adding client to broadcaster")
}

// RemoveClient closes the client's channel, unknown keys are ignored
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	client, ok := b.clients[key]
	if !ok {
		return
	}
	close(client.events)
	delete(b.clients, key)
	sseClients.Set(float64(len(b.clients)))

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.clients {
		close(client.events)
		delete(b.clients, key)
	}
	sseClients.Set(0)
}

func (b *Broadcaster) ClientCount() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}
