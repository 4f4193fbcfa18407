package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"

	"contentfeed/feed"
	"contentfeed/models"
	"contentfeed/query"
)

// Collection is one named collection of documents
type Collection struct {
	db   *DB
	name string
}

func (c *Collection) Name() string {
	return c.name
}

// Read operations

func (c *Collection) Query(ctx context.Context, q query.Query) (feed.Page, error) {
	return c.query(ctx, q, nil)
}

func (c *Collection) QueryAfter(ctx context.Context, q query.Query, cursor models.Record) (feed.Page, error) {
	return c.query(ctx, q, &cursor)
}

func (c *Collection) query(ctx context.Context, q query.Query, cursor *models.Record) (feed.Page, error) {
	sql, args, err := buildQuery(c.name, q, cursor)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"collection": c.name,
		"sql":        sql,
		"args":       args,
	}).Debug("Generated SQL query")

	rows, err := c.db.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	page := feed.Page{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		page = append(page, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return page, nil
}

func (c *Collection) Get(ctx context.Context, id string) (models.Record, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "created_seconds", "created_nanos", "data").From("documents")
	sb.Where(sb.Equal("collection", c.name), sb.Equal("id", id))
	sql, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	record, err := scanRecord(c.db.db.QueryRowContext(ctx, sql, args...))
	if err != nil {
		return models.Record{}, wrapNotFound(c.name, id, err)
	}
	return record, nil
}

// Write operations

// Set creates the document or replaces it entirely
func (c *Collection) Set(ctx context.Context, record models.Record) error {
	if record.ID == "" {
		return fmt.Errorf("%s: document id is required", c.name)
	}
	data, err := encodeData(record.Data)
	if err != nil {
		return err
	}
	seconds, nanos := timestampColumns(record.CreatedAt)

	ib := sqlbuilder.NewInsertBuilder()
	ib.ReplaceInto("documents").
		Cols("collection", "id", "created_seconds", "created_nanos", "data", "updated_at").
		Values(c.name, record.ID, seconds, nanos, data, time.Now().Unix())
	sql, args := ib.BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := c.db.db.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}

	log.WithFields(log.Fields{
		"collection": c.name,
		"id":         record.ID,
	}).Info("Set document")

	c.db.notify(models.ChangeEvent{Collection: c.name, Operation: models.ChangeSet, ID: record.ID, Record: &record})
	return nil
}

// Update merges fields into the payload of an existing document
func (c *Collection) Update(ctx context.Context, id string, fields map[string]any) error {
	tx, err := c.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "created_seconds", "created_nanos", "data").From("documents")
	sb.Where(sb.Equal("collection", c.name), sb.Equal("id", id))
	selectSQL, selectArgs := sb.BuildWithFlavor(sqlbuilder.SQLite)

	record, err := scanRecord(tx.QueryRowContext(ctx, selectSQL, selectArgs...))
	if err != nil {
		return wrapNotFound(c.name, id, err)
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
	data, err := encodeData(record.Data)
	if err != nil {
		return err
	}

	ub := sqlbuilder.NewUpdateBuilder()
	ub.Update("documents").
		Set(ub.Assign("data", data), ub.Assign("updated_at", time.Now().Unix())).
		Where(ub.Equal("collection", c.name), ub.Equal("id", id))
	updateSQL, updateArgs := ub.BuildWithFlavor(sqlbuilder.SQLite)

	if _, err := tx.ExecContext(ctx, updateSQL, updateArgs...); err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}

	log.WithFields(log.Fields{
		"collection": c.name,
		"id":         id,
		"fields":     len(fields),
	}).Info("Updated document")

	c.db.notify(models.ChangeEvent{Collection: c.name, Operation: models.ChangeUpdate, ID: id, Record: &record})
	return nil
}

// Delete removes a document, deleting a missing id is not an error
func (c *Collection) Delete(ctx context.Context, id string) error {
	del := sqlbuilder.NewDeleteBuilder()
	del.DeleteFrom("documents").Where(del.Equal("collection", c.name), del.Equal("id", id))
	sql, args := del.BuildWithFlavor(sqlbuilder.SQLite)

	res, err := c.db.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.WithFields(log.Fields{
			"collection": c.name,
			"id":         id,
		}).Info("Deleted document")
		c.db.notify(models.ChangeEvent{Collection: c.name, Operation: models.ChangeDelete, ID: id})
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (models.Record, error) {
	var (
		record  models.Record
		seconds sql.NullFloat64
		nanos   sql.NullFloat64
		data    string
	)
	if err := scanner.Scan(&record.ID, &seconds, &nanos, &data); err != nil {
		return models.Record{}, err
	}

	if seconds.Valid || nanos.Valid {
		record.CreatedAt = &models.Timestamp{}
		if seconds.Valid {
			record.CreatedAt.Seconds = &seconds.Float64
		}
		if nanos.Valid {
			record.CreatedAt.Nanoseconds = &nanos.Float64
		}
	}

	if err := json.Unmarshal([]byte(data), &record.Data); err != nil {
		return models.Record{}, fmt.Errorf("decode document %s: %w", record.ID, err)
	}
	return record, nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func timestampColumns(ts *models.Timestamp) (any, any) {
	if ts == nil {
		return nil, nil
	}
	var seconds, nanos any
	if ts.Seconds != nil {
		seconds = *ts.Seconds
	}
	if ts.Nanoseconds != nil {
		nanos = *ts.Nanoseconds
	}
	return seconds, nanos
}

func wrapNotFound(collection, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, models.ErrNotFound)
	}
	return err
}
