package db

import (
	"database/sql"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"contentfeed/models"
)

// DB is a document store on top of a single SQLite database. Documents of all
// collections share one table, payloads are stored as JSON.
type DB struct {
	db *sql.DB

	mu        sync.RWMutex
	listeners []func(models.ChangeEvent)
}

// Open migrates the database file and returns a store using it
func Open(database string) (*DB, error) {
	if err := Migrate(database); err != nil {
		return nil, err
	}
	return NewDB(database)
}

// NewDB connects to an already migrated database
func NewDB(database string) (*DB, error) {
	conn, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	log.WithField("database", database).Info("Connected to database")
	return &DB{db: conn}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// OnChange registers fn to be called after every successful write
func (db *DB) OnChange(fn func(models.ChangeEvent)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.listeners = append(db.listeners, fn)
}

func (db *DB) notify(evt models.ChangeEvent) {
	db.mu.RLock()
	listeners := make([]func(models.ChangeEvent), len(db.listeners))
	copy(listeners, db.listeners)
	db.mu.RUnlock()

	for _, fn := range listeners {
		fn(evt)
	}
}

// Collection returns a handle on the named collection
func (db *DB) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}
